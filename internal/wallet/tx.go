package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is an unsigned transaction request. Treat it as immutable once
// constructed: a sponsorship step may only produce a copy with fee fields
// replaced (WithFees), never touch from/to/data/value/chainId — otherwise the
// signature would cover a different operation than the one negotiated.
type TxRequest struct {
	From    common.Address
	To      common.Address
	Data    []byte
	Value   *big.Int
	ChainID *big.Int

	Nonce    *uint64
	GasLimit uint64

	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Fees are the paymaster-suggested fee fields. A nil field keeps the
// request's existing value.
type Fees struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// WithFees returns a copy of the request with only fee fields replaced.
func (r *TxRequest) WithFees(f Fees) *TxRequest {
	cp := *r
	if f.GasPrice != nil {
		cp.GasPrice = f.GasPrice
	}
	if f.MaxFeePerGas != nil {
		cp.MaxFeePerGas = f.MaxFeePerGas
	}
	if f.MaxPriorityFeePerGas != nil {
		cp.MaxPriorityFeePerGas = f.MaxPriorityFeePerGas
	}
	return &cp
}
