package contract

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var contractAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

func offlineClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(contractAddr, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestPackMintSelector(t *testing.T) {
	c := offlineClient(t)
	data, err := c.PackMint("ipfs://QmMeta")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := crypto.Keccak256([]byte("mintToken(string)"))[:4]
	if !bytes.Equal(data[:4], want) {
		t.Errorf("selector = %x, want %x", data[:4], want)
	}
	// string argument round-trips through the ABI coder
	args, err := c.abi.Methods["mintToken"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := args[0].(string); got != "ipfs://QmMeta" {
		t.Errorf("token uri = %q", got)
	}
}

func mintedLog(addr common.Address, tokenID *big.Int) *types.Log {
	return &types.Log{
		Address: addr,
		Topics: []common.Hash{
			tokenMintedTopic,
			common.HexToHash("0x1111111111111111111111111111111111111111"),
			common.BigToHash(tokenID),
		},
	}
}

func TestParseTokenMinted(t *testing.T) {
	c := offlineClient(t)
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			// unrelated log from another contract first
			{Address: common.HexToAddress("0x04"), Topics: []common.Hash{tokenMintedTopic}},
			mintedLog(contractAddr, big.NewInt(42)),
		},
	}
	id, err := c.ParseTokenMinted(receipt)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("token id = %s, want 42", id)
	}
}

func TestParseTokenMintedNoEvent(t *testing.T) {
	c := offlineClient(t)
	cases := []struct {
		name    string
		receipt *types.Receipt
	}{
		{"empty receipt", &types.Receipt{}},
		{"wrong contract", &types.Receipt{Logs: []*types.Log{
			mintedLog(common.HexToAddress("0x99"), big.NewInt(1)),
		}}},
		{"wrong topic", &types.Receipt{Logs: []*types.Log{{
			Address: contractAddr,
			Topics: []common.Hash{
				crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
				{}, {},
			},
		}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.ParseTokenMinted(tc.receipt); !errors.Is(err, ErrNoMintEvent) {
				t.Errorf("err = %v, want ErrNoMintEvent", err)
			}
		})
	}
}
