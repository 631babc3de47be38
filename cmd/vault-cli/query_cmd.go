package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"vaultchain/crypto"
)

func runAssessCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("assess", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: vault-cli assess <address>")
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid address: %v\n", err)
		return 1
	}
	result, rpcErr, callErr := nodeRPCCall("risk_assessment", []interface{}{map[string]string{"user": addr.String()}}, false)
	if callErr != nil {
		return handleRPCCallError(stderr, callErr)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runResolveCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: vault-cli resolve <key>")
		return 1
	}
	key := strings.TrimSpace(fs.Arg(0))
	if key == "" {
		fmt.Fprintln(stderr, "Error: registry key cannot be empty")
		return 1
	}
	result, rpcErr, callErr := nodeRPCCall("registry_resolve", []interface{}{map[string]string{"key": key}}, false)
	if callErr != nil {
		return handleRPCCallError(stderr, callErr)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runPolicyCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Usage: vault-cli policy")
		return 1
	}
	result, rpcErr, callErr := nodeRPCCall("payout_getPolicy", []interface{}{}, false)
	if callErr != nil {
		return handleRPCCallError(stderr, callErr)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runSnapshotCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: vault-cli snapshot <address>")
		return 1
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid address: %v\n", err)
		return 1
	}
	result, rpcErr, callErr := nodeRPCCall("viewcache_snapshot", []interface{}{map[string]string{"user": addr.String()}}, false)
	if callErr != nil {
		return handleRPCCallError(stderr, callErr)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}
