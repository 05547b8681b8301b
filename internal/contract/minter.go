// Package contract wraps the JustCoinIt ERC-721 contract: price read, gas
// estimation, calldata packing, and receipt event parsing.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// JustCoinItABI covers the mint surface of the deployed contract.
const JustCoinItABI = `[{"inputs":[],"name":"mintPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"string","name":"tokenURI","type":"string"}],"name":"mintToken","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"payable","type":"function"},{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"to","type":"address"},{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"},{"indexed":false,"internalType":"string","name":"tokenURI","type":"string"}],"name":"TokenMinted","type":"event"}]`

// ErrNoMintEvent means the receipt carried no parseable TokenMinted log.
// Callers treat this as degraded success, not failure: the mint confirmed
// even though the identifier could not be recovered.
var ErrNoMintEvent = errors.New("contract: no TokenMinted event in receipt")

var tokenMintedTopic = crypto.Keccak256Hash([]byte("TokenMinted(address,uint256,string)"))

// Client binds the mint contract at a fixed address.
type Client struct {
	abi   abi.ABI
	addr  common.Address
	eth   *ethclient.Client
	bound *bind.BoundContract
}

// NewClient parses the ABI and binds the contract. eth may be nil for
// offline uses (calldata packing, receipt parsing).
func NewClient(addr common.Address, eth *ethclient.Client) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(JustCoinItABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Client{
		abi:   parsed,
		addr:  addr,
		eth:   eth,
		bound: bind.NewBoundContract(addr, parsed, eth, eth, eth),
	}, nil
}

func (c *Client) Address() common.Address { return c.addr }

// MintPrice reads the contract's current mint price.
func (c *Client) MintPrice(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "mintPrice"); err != nil {
		return nil, fmt.Errorf("mintPrice: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PackMint returns the mintToken calldata for the given token URI.
func (c *Client) PackMint(tokenURI string) ([]byte, error) {
	data, err := c.abi.Pack("mintToken", tokenURI)
	if err != nil {
		return nil, fmt.Errorf("pack mintToken: %w", err)
	}
	return data, nil
}

// EstimateMintGas simulates the mint call with the price as value.
func (c *Client) EstimateMintGas(ctx context.Context, from common.Address, tokenURI string, value *big.Int) (uint64, error) {
	data, err := c.PackMint(tokenURI)
	if err != nil {
		return 0, err
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.addr,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("estimate mintToken gas: %w", err)
	}
	return gas, nil
}

// ParseTokenMinted extracts the token id from the receipt's TokenMinted log.
func (c *Client) ParseTokenMinted(receipt *types.Receipt) (*big.Int, error) {
	for _, lg := range receipt.Logs {
		if lg.Address != c.addr || len(lg.Topics) < 3 {
			continue
		}
		if lg.Topics[0] != tokenMintedTopic {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[2].Bytes()), nil
	}
	return nil, ErrNoMintEvent
}
