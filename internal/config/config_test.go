package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BASE_MINT", "MAX_HOPS", "SCAN_INTERVAL_MS", "CYCLES_PER_SCAN_CAP",
		"MAX_SLOT_LAG", "INPUT_MIN_BASE", "INPUT_MAX_BASE", "EMIT_MODE",
		"THROUGHPUT_CAP_PER_SEC", "SLIPPAGE_MIN_BPS", "SLIPPAGE_MAX_BPS",
	} {
		os.Unsetenv(key)
	}
}

const validMint = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("BASE_MINT", validMint)
	defer os.Unsetenv("BASE_MINT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with only BASE_MINT set: unexpected error %v", err)
	}
	if cfg.MaxHops != 4 {
		t.Errorf("default MaxHops = %d, want 4", cfg.MaxHops)
	}
	if cfg.EmitMode != EmitDryRun {
		t.Errorf("default EmitMode = %q, want dry_run", cfg.EmitMode)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "missing base mint",
			env:   map[string]string{},
			field: "BASE_MINT",
		},
		{
			name:  "base mint wrong length",
			env:   map[string]string{"BASE_MINT": "abcd"},
			field: "BASE_MINT",
		},
		{
			name:  "max hops too low",
			env:   map[string]string{"BASE_MINT": validMint, "MAX_HOPS": "1"},
			field: "MAX_HOPS",
		},
		{
			name:  "max hops too high",
			env:   map[string]string{"BASE_MINT": validMint, "MAX_HOPS": "9"},
			field: "MAX_HOPS",
		},
		{
			name:  "scan interval too low",
			env:   map[string]string{"BASE_MINT": validMint, "SCAN_INTERVAL_MS": "1"},
			field: "SCAN_INTERVAL_MS",
		},
		{
			name:  "input max below input min",
			env:   map[string]string{"BASE_MINT": validMint, "INPUT_MIN_BASE": "100", "INPUT_MAX_BASE": "10"},
			field: "INPUT_MAX_BASE",
		},
		{
			name:  "invalid emit mode",
			env:   map[string]string{"BASE_MINT": validMint, "EMIT_MODE": "yolo"},
			field: "EMIT_MODE",
		},
		{
			name:  "slippage max below min",
			env:   map[string]string{"BASE_MINT": validMint, "SLIPPAGE_MIN_BPS": "900", "SLIPPAGE_MAX_BPS": "100"},
			field: "SLIPPAGE_MAX_BPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer clearEnv(t)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() with %s: expected error, got nil", tt.name)
			}
			invErr, ok := err.(*InvalidConfigError)
			if !ok {
				t.Fatalf("Load() with %s: error type = %T, want *InvalidConfigError", tt.name, err)
			}
			if invErr.Field != tt.field {
				t.Errorf("Load() with %s: Field = %q, want %q", tt.name, invErr.Field, tt.field)
			}
			if ExitCode(err) != 64 {
				t.Errorf("ExitCode(%v) = %d, want 64", err, ExitCode(err))
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", ExitCode(nil))
	}
	if ExitCode(&InvalidConfigError{Field: "X", Detail: "y"}) != 64 {
		t.Errorf("ExitCode(*InvalidConfigError) != 64")
	}
}
