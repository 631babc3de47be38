package main

import "testing"

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}

	t.Run("cli flag takes precedence", func(t *testing.T) {
		if path := resolveGenesisPath("cli-path", "cfg-path", lookup); path != "cli-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cli-path")
		}
	})

	t.Run("environment overrides config", func(t *testing.T) {
		if path := resolveGenesisPath("", "cfg-path", lookup); path != "env-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "env-path")
		}
	})

	t.Run("config used when no other sources", func(t *testing.T) {
		emptyLookup := func(string) (string, bool) { return "", false }
		if path := resolveGenesisPath("", "cfg-path", emptyLookup); path != "cfg-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cfg-path")
		}
	})

	t.Run("empty everywhere means no document", func(t *testing.T) {
		emptyLookup := func(string) (string, bool) { return "", false }
		if path := resolveGenesisPath("", "", emptyLookup); path != "" {
			t.Fatalf("expected empty path, got %q", path)
		}
	})
}

func TestResolveGenesisPathTrimsValues(t *testing.T) {
	blankLookup := func(string) (string, bool) { return "  \t ", true }

	if path := resolveGenesisPath("  cli  ", " cfg ", blankLookup); path != "cli" {
		t.Fatalf("expected trimmed CLI path, got %q", path)
	}
	// A whitespace-only environment value must not mask the config path.
	if path := resolveGenesisPath("", " cfg ", blankLookup); path != "cfg" {
		t.Fatalf("expected trimmed config path, got %q", path)
	}
}

func TestResolveAuthTokenPrefersEnvironment(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != rpcTokenEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return " env-token ", true
	}

	if token := resolveAuthToken("cfg-token", lookup); token != "env-token" {
		t.Fatalf("unexpected token: got %q want %q", token, "env-token")
	}

	emptyLookup := func(string) (string, bool) { return "", false }
	if token := resolveAuthToken(" cfg-token ", emptyLookup); token != "cfg-token" {
		t.Fatalf("unexpected token: got %q want %q", token, "cfg-token")
	}

	blankLookup := func(string) (string, bool) { return "   ", true }
	if token := resolveAuthToken("cfg-token", blankLookup); token != "cfg-token" {
		t.Fatalf("whitespace env token should fall back to config, got %q", token)
	}
}
