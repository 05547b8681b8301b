// Package mint holds the transaction-sponsorship and submission pipeline:
// build the mint transaction, negotiate optional gas sponsorship, submit,
// confirm, and recover deterministically from every failure mode. The
// pipeline crosses two independently unreliable systems (an off-chain
// paymaster and an on-chain node); a hard failure in either must never block
// the economically simplest correct action — an unsponsored, correctly
// priced mint.
package mint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/justcoinit/basemint/internal/wallet"
)

// UnknownTokenID marks a confirmed mint whose identifier could not be
// recovered from the receipt. Degraded success, not an error.
const UnknownTokenID = "Unknown"

var (
	// ErrBusy means a mint for this session is already in flight. Signing two
	// transactions from one account concurrently risks nonce collision.
	ErrBusy = errors.New("mint: attempt already in progress")
	// ErrNotConnected means no wallet session is established.
	ErrNotConnected = errors.New("mint: wallet not connected")
	// ErrContractCallFailed is fatal for the attempt — typically insufficient
	// funds or a reverted call.
	ErrContractCallFailed = errors.New("mint: contract call failed")
)

// Redis key templates (coordination state only, all TTL'd)
const (
	lockKeyFmt   = "mint:lock:%s" // %s = wallet address (lowercase)
	statusKeyFmt = "mint:status:%s"
	resultKeyFmt = "mint:last:%s"
)

const lockTTL = 10 * time.Minute

// Result is the mint outcome returned to the caller.
type Result struct {
	TransactionHash string `json:"transactionHash"`
	TokenID         string `json:"tokenId"`
}

// Contract is the on-chain mint capability (satisfied by contract.Client).
type Contract interface {
	Address() common.Address
	MintPrice(ctx context.Context) (*big.Int, error)
	PackMint(tokenURI string) ([]byte, error)
	EstimateMintGas(ctx context.Context, from common.Address, tokenURI string, value *big.Int) (uint64, error)
	ParseTokenMinted(receipt *types.Receipt) (*big.Int, error)
}

// Sponsor is the paymaster capability (satisfied by sponsor.Client).
type Sponsor interface {
	CheckEligibility(ctx context.Context, address string) bool
	Sponsor(ctx context.Context, req *wallet.TxRequest) *wallet.TxRequest
}

// Preparer produces the content-addressed token URI (satisfied by
// metadata.Preparer).
type Preparer interface {
	Prepare(ctx context.Context, imageURL string) (string, error)
}

// Orchestrator drives one mint attempt at a time for its session.
type Orchestrator struct {
	session  *wallet.Session
	contract Contract
	sponsor  Sponsor
	preparer Preparer
	rdb      *redis.Client
	log      *zap.Logger

	fallbackPrice *big.Int
	fallbackGas   uint64
	statusTTL     time.Duration

	mu       sync.Mutex
	status   Status
	listener func(Status)
}

func NewOrchestrator(
	session *wallet.Session,
	contract Contract,
	sponsor Sponsor,
	preparer Preparer,
	rdb *redis.Client,
	fallbackPrice *big.Int,
	fallbackGas uint64,
	statusTTL time.Duration,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		session:       session,
		contract:      contract,
		sponsor:       sponsor,
		preparer:      preparer,
		rdb:           rdb,
		fallbackPrice: fallbackPrice,
		fallbackGas:   fallbackGas,
		statusTTL:     statusTTL,
		log:           log,
	}
}

// SetStatusListener registers the observer invoked on every status change.
func (o *Orchestrator) SetStatusListener(fn func(Status)) {
	o.mu.Lock()
	o.listener = fn
	o.mu.Unlock()
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Reset returns the orchestrator to Idle after a chain-changed reload.
// In-flight attempts are left to run to completion: a broadcast transaction
// cannot be withdrawn.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.status.Terminal() {
		o.status = StatusIdle
	}
	o.mu.Unlock()
}

// Mint runs the full pipeline for one image. Re-entrancy is rejected with
// ErrBusy while a prior attempt is in a non-terminal state.
func (o *Orchestrator) Mint(ctx context.Context, imageURL string) (*Result, error) {
	if !o.session.IsConnected() {
		return nil, ErrNotConnected
	}
	from := o.session.Address()
	addrKey := strings.ToLower(from.Hex())

	if err := o.begin(ctx, addrKey); err != nil {
		return nil, err
	}
	defer o.releaseLock(ctx, addrKey)

	// ── metadata ──────────────────────────────────────────────────────────
	tokenURI, err := o.preparer.Prepare(ctx, imageURL)
	if err != nil {
		return nil, o.fail(ctx, addrKey, fmt.Errorf("prepare metadata: %w", err))
	}

	// ── price and gas, each independently recoverable ─────────────────────
	o.setStatus(ctx, addrKey, StatusEstimatingGas)
	price := o.mintPrice(ctx)
	gasLimit := o.mintGasLimit(ctx, from, tokenURI, price)

	data, err := o.contract.PackMint(tokenURI)
	if err != nil {
		return nil, o.fail(ctx, addrKey, fmt.Errorf("%w: %v", ErrContractCallFailed, err))
	}
	req := &wallet.TxRequest{
		From:     from,
		To:       o.contract.Address(),
		Data:     data,
		Value:    price,
		ChainID:  new(big.Int).Set(o.session.Target().ChainID),
		GasLimit: gasLimit,
	}

	// ── sponsorship, re-derived per attempt ───────────────────────────────
	o.setStatus(ctx, addrKey, StatusAwaitingSponsorDecision)
	req = o.trySponsor(ctx, req)

	// ── submit ────────────────────────────────────────────────────────────
	o.setStatus(ctx, addrKey, StatusAwaitingWalletConfirmation)
	txHash, err := o.session.Provider().SendTransaction(ctx, req)
	if err != nil {
		if wallet.IsUserRejected(err) {
			return nil, o.fail(ctx, addrKey, err)
		}
		return nil, o.fail(ctx, addrKey, fmt.Errorf("%w: %v", ErrContractCallFailed, err))
	}
	o.setStatus(ctx, addrKey, StatusSubmitted)
	o.log.Info("mint transaction broadcast",
		zap.String("tx", txHash.Hex()),
		zap.String("from", from.Hex()),
	)

	// ── confirm ───────────────────────────────────────────────────────────
	receipt, err := o.session.Provider().WaitMined(ctx, txHash)
	if err != nil {
		return nil, o.fail(ctx, addrKey, fmt.Errorf("%w: wait mined: %v", ErrContractCallFailed, err))
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, o.fail(ctx, addrKey, fmt.Errorf("%w: tx reverted: %s", ErrContractCallFailed, txHash.Hex()))
	}

	tokenID := UnknownTokenID
	if id, parseErr := o.contract.ParseTokenMinted(receipt); parseErr == nil {
		tokenID = id.String()
	} else {
		// Degraded success: the mint confirmed, only the identifier is lost.
		o.log.Warn("mint confirmed but token id not recovered",
			zap.String("tx", txHash.Hex()),
			zap.Error(parseErr),
		)
	}

	o.setStatus(ctx, addrKey, StatusConfirmed)
	result := &Result{TransactionHash: txHash.Hex(), TokenID: tokenID}
	o.storeResult(ctx, addrKey, result)
	o.log.Info("mint confirmed",
		zap.String("tx", result.TransactionHash),
		zap.String("token_id", result.TokenID),
	)
	return result, nil
}

// begin takes the in-process re-entrancy guard and the cross-replica redis
// lock, moving the attempt into PreparingMetadata.
func (o *Orchestrator) begin(ctx context.Context, addrKey string) error {
	o.mu.Lock()
	if !o.status.Terminal() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.status = StatusPreparingMetadata
	listener := o.listener
	o.mu.Unlock()

	if !o.acquireLock(ctx, addrKey) {
		o.mu.Lock()
		o.status = StatusIdle
		o.mu.Unlock()
		return ErrBusy
	}

	if listener != nil {
		listener(StatusPreparingMetadata)
	}
	o.publishStatus(ctx, addrKey, StatusPreparingMetadata)
	return nil
}

func (o *Orchestrator) setStatus(ctx context.Context, addrKey string, s Status) {
	o.mu.Lock()
	o.status = s
	listener := o.listener
	o.mu.Unlock()
	if listener != nil {
		listener(s)
	}
	o.publishStatus(ctx, addrKey, s)
}

func (o *Orchestrator) fail(ctx context.Context, addrKey string, err error) error {
	o.setStatus(ctx, addrKey, StatusFailed)
	o.log.Error("mint attempt failed", zap.Error(err))
	return err
}

// mintPrice reads the on-chain price, substituting the hardcoded fallback on
// failure. The price is a reasonable public constant; a transient read
// failure must not block minting.
func (o *Orchestrator) mintPrice(ctx context.Context) *big.Int {
	price, err := o.contract.MintPrice(ctx)
	if err != nil {
		o.log.Warn("mint price read failed, using fallback",
			zap.String("fallback_wei", o.fallbackPrice.String()),
			zap.Error(err),
		)
		return new(big.Int).Set(o.fallbackPrice)
	}
	return price
}

// mintGasLimit estimates gas and scales by 120/100 against block-state drift
// between estimation and inclusion. Estimation failure substitutes the fixed
// fallback as-is, with no extra margin.
func (o *Orchestrator) mintGasLimit(ctx context.Context, from common.Address, tokenURI string, value *big.Int) uint64 {
	est, err := o.contract.EstimateMintGas(ctx, from, tokenURI, value)
	if err != nil {
		o.log.Warn("gas estimation failed, using fallback",
			zap.Uint64("fallback", o.fallbackGas),
			zap.Error(err),
		)
		return o.fallbackGas
	}
	return est * 120 / 100
}

// trySponsor consults the paymaster. Every failure path hands back the
// original request: sponsorship failure must never abort the mint.
func (o *Orchestrator) trySponsor(ctx context.Context, req *wallet.TxRequest) *wallet.TxRequest {
	if !o.sponsor.CheckEligibility(ctx, req.From.Hex()) {
		o.log.Info("not eligible for sponsored gas, using regular transaction")
		return req
	}

	// The sponsored path pins the nonce so the paymaster prices the exact
	// transaction that will be signed.
	nonce, err := o.session.Provider().PendingNonceAt(ctx, req.From)
	if err != nil {
		o.log.Warn("nonce read for sponsorship failed, using regular transaction", zap.Error(err))
		return req
	}
	populated := *req
	populated.Nonce = &nonce

	sponsored := o.sponsor.Sponsor(ctx, &populated)
	if sponsored == nil {
		return req
	}
	o.log.Info("transaction gas-sponsored")
	return sponsored
}

// ── redis coordination (best-effort; nil client disables it) ───────────────

func (o *Orchestrator) acquireLock(ctx context.Context, addrKey string) bool {
	if o.rdb == nil {
		return true
	}
	ok, err := o.rdb.SetNX(ctx, fmt.Sprintf(lockKeyFmt, addrKey), 1, lockTTL).Result()
	if err != nil {
		// The in-process guard still holds; do not block mints on redis.
		o.log.Warn("mint lock: redis unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (o *Orchestrator) releaseLock(ctx context.Context, addrKey string) {
	if o.rdb == nil {
		return
	}
	o.rdb.Del(ctx, fmt.Sprintf(lockKeyFmt, addrKey)) //nolint:errcheck
}

func (o *Orchestrator) publishStatus(ctx context.Context, addrKey string, s Status) {
	if o.rdb == nil {
		return
	}
	o.rdb.Set(ctx, fmt.Sprintf(statusKeyFmt, addrKey), s.String(), o.statusTTL) //nolint:errcheck
}

func (o *Orchestrator) storeResult(ctx context.Context, addrKey string, r *Result) {
	if o.rdb == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	o.rdb.Set(ctx, fmt.Sprintf(resultKeyFmt, addrKey), string(raw), o.statusTTL) //nolint:errcheck
}

// LastResult returns the stored result for an address, if any.
func (o *Orchestrator) LastResult(ctx context.Context, address string) (*Result, error) {
	if o.rdb == nil {
		return nil, nil
	}
	raw, err := o.rdb.Get(ctx, fmt.Sprintf(resultKeyFmt, strings.ToLower(address))).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
