// cmd/deploy/main.go — deploys the JustCoinIt mint contract.
//
// Usage:
//   go run ./cmd/deploy/ --rpc <url> --key <hex> --chain-id <id> [--artifact <path>]
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/justcoinit/basemint/internal/contract"
)

func main() {
	rpcURL := flag.String("rpc", "https://mainnet.base.org", "EVM RPC endpoint")
	keyHex := flag.String("key", "", "deployer private key (hex, with or without 0x)")
	chainID := flag.Int64("chain-id", 8453, "chain ID")
	artifact := flag.String("artifact", "contracts/out/JustCoinIt.sol/JustCoinIt.json", "Foundry artifact path")
	flag.Parse()

	if *keyHex == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		os.Exit(1)
	}

	// ── private key ───────────────────────────────────────────────────────────
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse key: %v\n", err)
		os.Exit(1)
	}
	deployer := crypto.PubkeyToAddress(privKey.PublicKey)
	fmt.Printf("Deployer : %s\n", deployer.Hex())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := ethclient.DialContext(ctx, *rpcURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial rpc: %v\n", err)
		os.Exit(1)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privKey, big.NewInt(*chainID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "transactor: %v\n", err)
		os.Exit(1)
	}
	auth.Context = ctx

	// ── bytecode from Foundry artifact ────────────────────────────────────────
	raw, err := os.ReadFile(*artifact)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read artifact %s: %v\n", *artifact, err)
		os.Exit(1)
	}
	var parsed struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "parse artifact %s: %v\n", *artifact, err)
		os.Exit(1)
	}
	bytecode, err := hex.DecodeString(strings.TrimPrefix(parsed.Bytecode.Object, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode bytecode: %v\n", err)
		os.Exit(1)
	}

	// ── deploy ────────────────────────────────────────────────────────────────
	fmt.Printf("\nDeploying JustCoinIt (chainID=%d)...\n", *chainID)

	contractABI, err := abi.JSON(strings.NewReader(contract.JustCoinItABI))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse ABI: %v\n", err)
		os.Exit(1)
	}
	addr, tx, _, err := bind.DeployContract(auth, contractABI, bytecode, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Tx hash : %s\n", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wait mined: %v\n", err)
		os.Exit(1)
	}
	if receipt.Status == 0 {
		fmt.Fprintln(os.Stderr, "deploy tx reverted")
		os.Exit(1)
	}

	// ── summary ───────────────────────────────────────────────────────────────
	fmt.Printf(`
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
DEPLOY COMPLETE
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Contract : %s

Set in .env:
  MINT_CONTRACT=%s

Explorer:
  https://basescan.org/address/%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, addr.Hex(), addr.Hex(), addr.Hex())
}
