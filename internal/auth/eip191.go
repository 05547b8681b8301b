// Package auth verifies wallet-signed API requests. The caller proves control
// of an address by EIP-191 personal-signing a short-lived envelope; nonces are
// tracked in redis so a captured request cannot be replayed.
package auth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const personalSignPrefix = "\x19Ethereum Signed Message:\n"

// PersonalHash returns the digest a wallet signs under personal_sign: the
// message keccak-hashed behind the EIP-191 length-prefixed header.
func PersonalHash(msg []byte) []byte {
	header := fmt.Sprintf("%s%d", personalSignPrefix, len(msg))
	return crypto.Keccak256([]byte(header), msg)
}

// RecoverSigner returns the address that personal-signed msg from a 65-byte
// R||S||V signature. Wallets report V as 27/28 while secp256k1 recovery wants
// the raw recovery id, so both forms are accepted.
func RecoverSigner(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("auth: signature must be 65 bytes")
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if v := normalized[64]; v == 27 || v == 28 {
		normalized[64] = v - 27
	}

	pub, err := crypto.SigToPub(PersonalHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("auth: ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
