package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/justcoinit/basemint/internal/contract"
)

func main() {
	rpcURL := flag.String("rpc", "https://mainnet.base.org", "EVM RPC endpoint")
	keyHex := flag.String("key", "", "wallet private key (hex)")
	contractAddr := flag.String("contract", "", "JustCoinIt contract address")
	flag.Parse()

	if *keyHex == "" || *contractAddr == "" {
		fmt.Fprintln(os.Stderr, "error: --key and --contract are required")
		os.Exit(1)
	}

	ctx := context.Background()
	eth, err := ethclient.DialContext(ctx, *rpcURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial rpc: %v\n", err)
		os.Exit(1)
	}
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse key: %v\n", err)
		os.Exit(1)
	}
	addr := crypto.PubkeyToAddress(privKey.PublicKey)

	balance, err := eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "balance: %v\n", err)
		os.Exit(1)
	}

	c, err := contract.NewClient(common.HexToAddress(*contractAddr), eth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contract: %v\n", err)
		os.Exit(1)
	}
	price, err := c.MintPrice(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint price: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wallet     : %s\n", addr.Hex())
	fmt.Printf("balance    : %s wei\n", balance)
	fmt.Printf("mint price : %s wei\n", price)
}
