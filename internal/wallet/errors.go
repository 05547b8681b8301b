package wallet

import (
	"errors"
	"fmt"
)

// Wallet-side rejection codes, mirroring EIP-1193 / EIP-3085 conventions.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

var (
	// ErrNoProvider means no wallet capability is reachable at all.
	ErrNoProvider = errors.New("wallet: no provider reachable")
	// ErrNoAccounts means the account request returned an empty list.
	ErrNoAccounts = errors.New("wallet: provider returned no accounts")
)

// ProviderError is a coded rejection reported by the wallet capability.
type ProviderError struct {
	Code int
	Msg  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet: provider error %d: %s", e.Code, e.Msg)
}

// IsUserRejected reports whether err is the wallet's user-cancellation code.
// The distinction matters upstream: "user declined" and "transaction failed"
// need different retry guidance.
func IsUserRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUserRejected
}

// IsChainNotAdded reports whether err is the distinguished "unrecognized
// chain" code that makes switchChain fall back to addChain.
func IsChainNotAdded(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeChainNotAdded
}
