package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Info is a display snapshot of the session state.
type Info struct {
	Address      string `json:"address"`
	ChainID      int64  `json:"chainId"`
	Connected    bool   `json:"connected"`
	WrongNetwork bool   `json:"wrongNetwork"`
}

// Session holds the authenticated wallet/chain state. A process hosts a
// single active session; Connect releases any previous event subscription
// before acquiring its own, so events are never delivered twice.
type Session struct {
	provider Provider
	target   ChainParams
	log      *zap.Logger

	mu           sync.Mutex
	address      common.Address
	chainID      *big.Int
	connected    bool
	wrongNetwork bool

	sub      *Subscription
	done     chan struct{}
	onReload func()
}

func NewSession(provider Provider, target ChainParams, log *zap.Logger) *Session {
	return &Session{provider: provider, target: target, log: log}
}

// OnReload registers the hook invoked when a chainChanged event arrives.
// A full reload is the conservative response: the event contract does not
// guarantee partial recovery of outstanding transaction state.
func (s *Session) OnReload(fn func()) {
	s.mu.Lock()
	s.onReload = fn
	s.mu.Unlock()
}

// Connect requests account access and coerces the wallet onto the target
// network. A failed switch is non-fatal: the session still connects, with the
// WrongNetwork advisory set, and stays advisory until corrected.
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return err
	}

	wrong := false
	if chainID.Cmp(s.target.ChainID) != 0 {
		if err := s.switchToTarget(ctx); err != nil {
			wrong = true
			s.log.Warn("network switch failed, session connected on wrong network",
				zap.String("current", chainID.String()),
				zap.String("target", s.target.ChainID.String()),
				zap.Error(err),
			)
		} else {
			chainID = new(big.Int).Set(s.target.ChainID)
		}
	}

	s.mu.Lock()
	s.address = accounts[0]
	s.chainID = chainID
	s.connected = true
	s.wrongNetwork = wrong
	s.mu.Unlock()

	s.watch()

	s.log.Info("wallet connected",
		zap.String("address", accounts[0].Hex()),
		zap.String("chain", chainID.String()),
		zap.Bool("wrong_network", wrong),
	)
	return nil
}

// switchToTarget tries switchChain; on the distinguished "unrecognized
// chain" code it adds the target network's canonical parameters and retries.
func (s *Session) switchToTarget(ctx context.Context) error {
	err := s.provider.SwitchChain(ctx, s.target.ChainID)
	if err == nil {
		return nil
	}
	if !IsChainNotAdded(err) {
		return err
	}
	if err := s.provider.AddChain(ctx, s.target); err != nil {
		return err
	}
	return s.provider.SwitchChain(ctx, s.target.ChainID)
}

// Disconnect clears local session state only. No wallet-side protocol exists
// to force disconnection; the provider still considers the account authorized.
func (s *Session) Disconnect() {
	s.stopWatch()
	s.mu.Lock()
	s.address = common.Address{}
	s.chainID = nil
	s.connected = false
	s.wrongNetwork = false
	s.mu.Unlock()
	s.log.Info("wallet disconnected")
}

// watch acquires a fresh event subscription, releasing the previous one.
func (s *Session) watch() {
	s.stopWatch()

	sub := s.provider.Subscribe()
	done := make(chan struct{})

	s.mu.Lock()
	s.sub = sub
	s.done = done
	s.mu.Unlock()

	go s.watchLoop(sub, done)
}

func (s *Session) stopWatch() {
	s.mu.Lock()
	sub, done := s.sub, s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if sub != nil {
		sub.Close()
	}
}

// watchLoop applies externally delivered wallet events. No ordering guarantee
// exists between these events and explicit user actions; whichever arrives
// most recently wins.
func (s *Session) watchLoop(sub *Subscription, done chan struct{}) {
	for {
		select {
		case accounts, ok := <-sub.AccountsChanged:
			if !ok {
				return
			}
			if len(accounts) == 0 {
				s.log.Info("accounts changed: empty, clearing session")
				s.mu.Lock()
				s.address = common.Address{}
				s.chainID = nil
				s.connected = false
				s.wrongNetwork = false
				s.mu.Unlock()
				continue
			}
			s.mu.Lock()
			changed := accounts[0] != s.address
			if changed {
				s.address = accounts[0]
				s.connected = true
			}
			s.mu.Unlock()
			if changed {
				s.log.Info("accounts changed: adopted new account",
					zap.String("address", accounts[0].Hex()))
			}

		case chainID, ok := <-sub.ChainChanged:
			if !ok {
				return
			}
			s.mu.Lock()
			s.chainID = chainID
			s.wrongNetwork = chainID.Cmp(s.target.ChainID) != 0
			reload := s.onReload
			s.mu.Unlock()
			s.log.Info("chain changed, reloading environment",
				zap.String("chain", chainID.String()))
			if reload != nil {
				reload()
			}

		case <-done:
			return
		}
	}
}

func (s *Session) Provider() Provider { return s.provider }

func (s *Session) Target() ChainParams { return s.target }

func (s *Session) Address() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) WrongNetwork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrongNetwork
}

func (s *Session) ChainID() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID == nil {
		return nil
	}
	return new(big.Int).Set(s.chainID)
}

// Snapshot returns the display state for UI collaborators.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{Connected: s.connected, WrongNetwork: s.wrongNetwork}
	if s.connected {
		info.Address = s.address.Hex()
	}
	if s.chainID != nil {
		info.ChainID = s.chainID.Int64()
	}
	return info
}
