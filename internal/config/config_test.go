package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func quoteFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	flags.String("snapshots", "", "")
	flags.StringSlice("pool", nil, "")
	flags.String("format", "table", "")
	flags.Int("max-retries", 5, "")
	flags.Bool("referrer", false, "")
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("DEXSIM_MAX_RETRIES", "7")
	t.Setenv("DEXSIM_PG_DSN", "postgres://env")

	cfg, err := Load("", quoteFlags(t, "--snapshots=pools.jsonl", "--pool=ab,cd", "--referrer"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Snapshots != "pools.jsonl" || !cfg.HasReferrer {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Pools, []string{"ab", "cd"}) {
		t.Fatalf("unexpected pools %v", cfg.Pools)
	}
	if cfg.MaxRetries != 7 || cfg.PGDSN != "postgres://env" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.MaxIterations != 255 || cfg.RetryBackoff != 500*time.Millisecond || cfg.Format != "table" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dexsim.yaml")
	content := "snapshots: from-file.jsonl\npool:\n  - ab\n  - \" cd \"\nformat: JSON\nmax-iterations: 64\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, quoteFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Snapshots != "from-file.jsonl" || cfg.Format != "json" || cfg.MaxIterations != 64 {
		t.Fatalf("config file not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Pools, []string{"ab", "cd"}) {
		t.Fatalf("unexpected pools %v", cfg.Pools)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadRejectsFormat(t *testing.T) {
	if _, err := Load("", quoteFlags(t, "--format=xml")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestLoadLedgerRequiresRPCAndPools(t *testing.T) {
	flags := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.StringSlice("pool", nil, "")
	flags.Uint64("block", 0, "")
	if err := flags.Parse([]string{"--rpc=http://localhost:8545", "--block=12"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := LoadLedger("", flags); err == nil {
		t.Fatalf("expected missing pool error")
	}

	t.Setenv("DEXSIM_POOL", "0x01,0x02")
	cfg, err := LoadLedger("", flags)
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if cfg.Block != 12 || len(cfg.Pools) != 2 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected ledger config %+v", cfg)
	}
}
