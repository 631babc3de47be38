package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"vaultchain/cmd/internal/passphrase"
	"vaultchain/crypto"
)

const keystorePassEnv = "VAULT_KEYSTORE_PASS"

// keysPassphrase is swappable so tests can supply a passphrase without a
// terminal. Each invocation builds a fresh source; within one process the
// command resolves the passphrase at most once.
var keysPassphrase = func() (string, error) {
	return passphrase.NewSource(keystorePassEnv).Get()
}

func runKeysCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, keysUsage())
		return 1
	}
	switch args[0] {
	case "new":
		return runKeysNew(args[1:], stdout, stderr)
	case "show":
		return runKeysShow(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown keys subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, keysUsage())
		return 1
	}
}

func runKeysNew(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keys new", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	fs.StringVar(&out, "out", "keystore.json", "path for the encrypted keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out cannot be empty")
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists; refusing to overwrite\n", out)
		return 1
	}

	pass, err := keysPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write keystore: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Generated new key at %s\n", out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	fmt.Fprintln(stdout, "Store the keystore file and passphrase securely.")
	return 0
}

func runKeysShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keys show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "keystore.json", "path to the encrypted keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}

	pass, err := keysPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.LoadFromKeystore(strings.TrimSpace(file), pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open keystore: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func keysUsage() string {
	return strings.TrimSpace(`Usage:
  vault-cli keys <command> [flags]

Commands:
  new   Generate a key and save it to an encrypted keystore file
  show  Decrypt a keystore file and print its address
`)
}
