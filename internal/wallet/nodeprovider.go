package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const receiptPollInterval = 2 * time.Second

// NodeProvider implements Provider over a JSON-RPC node and a local signing
// key — the server-side analog of a browser wallet. Networks become known via
// AddChain; SwitchChain redials the RPC endpoint registered for the requested
// chain and verifies the node really serves it.
type NodeProvider struct {
	mu       sync.Mutex
	client   *ethclient.Client
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	address  common.Address
	networks map[uint64]ChainParams

	subMu sync.Mutex
	subs  map[*providerSub]struct{}
}

type providerSub struct {
	accounts chan []common.Address
	chains   chan *big.Int
}

// NewNodeProvider dials the home network and registers it as known.
// keyHex may be empty, in which case RequestAccounts reports no accounts.
func NewNodeProvider(home ChainParams, keyHex string) (*NodeProvider, error) {
	client, err := ethclient.Dial(home.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	p := &NodeProvider{
		client:   client,
		chainID:  new(big.Int).Set(home.ChainID),
		networks: map[uint64]ChainParams{home.ChainID.Uint64(): home},
		subs:     make(map[*providerSub]struct{}),
	}

	if keyHex != "" {
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("parse wallet key: %w", err)
		}
		p.key = key
		p.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return p, nil
}

func (p *NodeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, ErrNoProvider
	}
	if p.key == nil {
		return nil, nil
	}
	return []common.Address{p.address}, nil
}

func (p *NodeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.chainID), nil
}

func (p *NodeProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chainID.Cmp(chainID) == 0 {
		return nil
	}
	params, ok := p.networks[chainID.Uint64()]
	if !ok {
		return &ProviderError{Code: CodeChainNotAdded, Msg: fmt.Sprintf("chain %s not added", chainID)}
	}

	client, err := ethclient.DialContext(ctx, params.RPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", params.RPCURL, err)
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("chain id of %s: %w", params.RPCURL, err)
	}
	if got.Cmp(chainID) != 0 {
		client.Close()
		return fmt.Errorf("rpc %s serves chain %s, want %s", params.RPCURL, got, chainID)
	}

	p.client.Close()
	p.client = client
	p.chainID = new(big.Int).Set(chainID)
	return nil
}

func (p *NodeProvider) AddChain(ctx context.Context, params ChainParams) error {
	if params.ChainID == nil || params.RPCURL == "" {
		return fmt.Errorf("add chain: chain id and rpc url are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.networks[params.ChainID.Uint64()] = params
	return nil
}

func (p *NodeProvider) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	return client.PendingNonceAt(ctx, account)
}

// SendTransaction signs with the local key and broadcasts. A dynamic-fee
// transaction is built when MaxFeePerGas is set, a legacy one otherwise.
func (p *NodeProvider) SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error) {
	p.mu.Lock()
	client, key, chainID := p.client, p.key, new(big.Int).Set(p.chainID)
	p.mu.Unlock()

	if key == nil {
		return common.Hash{}, ErrNoAccounts
	}

	nonce := uint64(0)
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		n, err := client.PendingNonceAt(ctx, req.From)
		if err != nil {
			return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
		}
		nonce = n
	}

	var txData types.TxData
	if req.MaxFeePerGas != nil {
		tip := req.MaxPriorityFeePerGas
		if tip == nil {
			tip = req.MaxFeePerGas
		}
		to := req.To
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: req.MaxFeePerGas,
			Gas:       req.GasLimit,
			To:        &to,
			Value:     req.Value,
			Data:      req.Data,
		}
	} else {
		gasPrice := req.GasPrice
		if gasPrice == nil {
			gp, err := client.SuggestGasPrice(ctx)
			if err != nil {
				return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
			}
			gasPrice = gp
		}
		to := req.To
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      req.GasLimit,
			To:       &to,
			Value:    req.Value,
			Data:     req.Data,
		}
	}

	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until the transaction is included or ctx
// expires. Once broadcast a transaction cannot be withdrawn; waiting is the
// only option.
func (p *NodeProvider) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		client := p.client
		p.mu.Unlock()

		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("receipt %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *NodeProvider) Subscribe() *Subscription {
	sub := &providerSub{
		accounts: make(chan []common.Address, 4),
		chains:   make(chan *big.Int, 4),
	}
	p.subMu.Lock()
	p.subs[sub] = struct{}{}
	p.subMu.Unlock()

	return &Subscription{
		AccountsChanged: sub.accounts,
		ChainChanged:    sub.chains,
		unsubscribe: func() {
			p.subMu.Lock()
			if _, ok := p.subs[sub]; ok {
				delete(p.subs, sub)
				close(sub.accounts)
				close(sub.chains)
			}
			p.subMu.Unlock()
		},
	}
}

// NotifyAccountsChanged fans an accountsChanged event out to subscribers.
// Slow subscribers drop the event rather than block the provider.
func (p *NodeProvider) NotifyAccountsChanged(accounts []common.Address) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for sub := range p.subs {
		select {
		case sub.accounts <- accounts:
		default:
		}
	}
}

// NotifyChainChanged fans a chainChanged event out to subscribers.
func (p *NodeProvider) NotifyChainChanged(chainID *big.Int) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for sub := range p.subs {
		select {
		case sub.chains <- chainID:
		default:
		}
	}
}
