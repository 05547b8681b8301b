package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainParams are the canonical add-network parameters (EIP-3085 shape).
type ChainParams struct {
	ChainID     *big.Int
	Name        string
	Currency    string
	RPCURL      string
	ExplorerURL string
}

// Subscription is an owned handle on the provider's event feed. Close
// unregisters both listeners; a session registering a new subscription must
// close its previous one first so no event is delivered twice.
type Subscription struct {
	AccountsChanged <-chan []common.Address
	ChainChanged    <-chan *big.Int

	unsubscribe func()
}

func (s *Subscription) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Provider is the narrow wallet capability the pipeline depends on, so the
// orchestrator never sees a concrete provider's object shape.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params ChainParams) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	// SendTransaction signs the request and broadcasts it.
	SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Subscribe() *Subscription
}
