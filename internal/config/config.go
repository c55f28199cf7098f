// Package config loads and validates the engine's configuration surface
// from environment variables, in the requireEnv/getEnvOrDefault idiom, and
// classifies load failures against the process's exit codes.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// EmitMode selects whether the emitter reaches the real Executor.
type EmitMode string

const (
	EmitLive   EmitMode = "live"
	EmitDryRun EmitMode = "dry_run"
)

// PriorityTip holds the priority-tip tunables: a base tip, a hard cap,
// and the four congestion lag tiers that scale between them.
type PriorityTip struct {
	Base       decimal.Decimal
	Cap        decimal.Decimal
	LagTiers   [4]int64 // milliseconds: <100, 100-500, 500-1000, >1000
	WindowSize int      // feedback samples averaged before the tip tier updates
}

// Slippage holds the slippage-tolerance controller's tunables.
type Slippage struct {
	MinBps       int64
	MaxBps       int64
	AdjustStepBp int64
	WindowSize   int
}

// Config is the engine's enumerated, not free-form, configuration surface.
type Config struct {
	BaseMint          models.TokenId
	MaxHops           int
	MinProfitBps      int64
	MaxSlotLag        uint64
	ScanInterval      int // milliseconds
	CyclesPerScanCap  int
	InputMinBase      uint64
	InputMaxBase      uint64
	MinLiquidity      uint64
	PriorityTip       PriorityTip
	Slippage          Slippage
	LatencyKillMs     int64
	BalanceFloor      uint64
	ThroughputPerSec  int
	EmitMode          EmitMode

	// Ambient surface required to run the process: HTTP port, optional
	// Postgres DSN, Solana RPC/WS endpoints.
	HTTPPort    string
	DatabaseURL string
	SolanaRPC   string
	SolanaWS    string
	ShutdownGraceMs int
}

// InvalidConfigError marks a failure that should exit the process with
// code 64.
type InvalidConfigError struct {
	Field  string
	Detail string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Detail)
}

// Load reads the configuration surface from the environment. Required
// fields missing or out of range return *InvalidConfigError; callers map
// that to exit code 64. Validation is collected into a single returned
// error instead of per-field log.Fatalf calls, so the engine can run
// embedded in tests, not just as a standalone binary.
func Load() (*Config, error) {
	baseMintHex := os.Getenv("BASE_MINT")
	if baseMintHex == "" {
		return nil, &InvalidConfigError{Field: "BASE_MINT", Detail: "required, hex-encoded 32-byte mint"}
	}
	baseMint, err := parseTokenHex(baseMintHex)
	if err != nil {
		return nil, &InvalidConfigError{Field: "BASE_MINT", Detail: err.Error()}
	}

	maxHops := getEnvIntOrDefault("MAX_HOPS", 4)
	if maxHops < 2 || maxHops > 5 {
		return nil, &InvalidConfigError{Field: "MAX_HOPS", Detail: "must be 2..5"}
	}

	scanInterval := getEnvIntOrDefault("SCAN_INTERVAL_MS", 200)
	if scanInterval < 10 {
		return nil, &InvalidConfigError{Field: "SCAN_INTERVAL_MS", Detail: "must be >= 10"}
	}

	cyclesCap := getEnvIntOrDefault("CYCLES_PER_SCAN_CAP", 64)
	if cyclesCap < 1 {
		return nil, &InvalidConfigError{Field: "CYCLES_PER_SCAN_CAP", Detail: "must be >= 1"}
	}

	maxSlotLag := getEnvIntOrDefault("MAX_SLOT_LAG", 5)
	if maxSlotLag < 1 {
		return nil, &InvalidConfigError{Field: "MAX_SLOT_LAG", Detail: "must be >= 1"}
	}

	inputMin := getEnvUint64OrDefault("INPUT_MIN_BASE", 1_000_000)
	inputMax := getEnvUint64OrDefault("INPUT_MAX_BASE", 1_000_000_000)
	if inputMax < inputMin {
		return nil, &InvalidConfigError{Field: "INPUT_MAX_BASE", Detail: "must be >= INPUT_MIN_BASE"}
	}

	emitMode := EmitMode(getEnvOrDefault("EMIT_MODE", string(EmitDryRun)))
	if emitMode != EmitLive && emitMode != EmitDryRun {
		return nil, &InvalidConfigError{Field: "EMIT_MODE", Detail: "must be 'live' or 'dry_run'"}
	}

	throughputCap := getEnvIntOrDefault("THROUGHPUT_CAP_PER_SEC", 5)
	if throughputCap < 1 {
		return nil, &InvalidConfigError{Field: "THROUGHPUT_CAP_PER_SEC", Detail: "must be >= 1"}
	}

	tipBase := getEnvDecimalOrDefault("PRIORITY_TIP_BASE_USD", decimal.NewFromFloat(0.0005))
	tipCap := getEnvDecimalOrDefault("PRIORITY_TIP_CAP_USD", decimal.NewFromFloat(0.01))
	tipWindow := getEnvIntOrDefault("PRIORITY_TIP_WINDOW_SIZE", 5)

	slippageMin := getEnvIntOrDefault("SLIPPAGE_MIN_BPS", 100)
	slippageMax := getEnvIntOrDefault("SLIPPAGE_MAX_BPS", 800)
	slippageStep := getEnvIntOrDefault("SLIPPAGE_ADJUST_STEP_BPS", 50)
	slippageWindow := getEnvIntOrDefault("SLIPPAGE_WINDOW_SIZE", 5)
	if slippageMax < slippageMin {
		return nil, &InvalidConfigError{Field: "SLIPPAGE_MAX_BPS", Detail: "must be >= SLIPPAGE_MIN_BPS"}
	}

	cfg := &Config{
		BaseMint:         baseMint,
		MaxHops:          maxHops,
		MinProfitBps:     int64(getEnvIntOrDefault("MIN_PROFIT_BPS", 20)),
		MaxSlotLag:       uint64(maxSlotLag),
		ScanInterval:     scanInterval,
		CyclesPerScanCap: cyclesCap,
		InputMinBase:     inputMin,
		InputMaxBase:     inputMax,
		MinLiquidity:     getEnvUint64OrDefault("MIN_LIQUIDITY", 1000),
		PriorityTip: PriorityTip{
			Base:       tipBase,
			Cap:        tipCap,
			LagTiers:   [4]int64{100, 500, 1000, 0},
			WindowSize: tipWindow,
		},
		Slippage: Slippage{
			MinBps:       int64(slippageMin),
			MaxBps:       int64(slippageMax),
			AdjustStepBp: int64(slippageStep),
			WindowSize:   slippageWindow,
		},
		LatencyKillMs:    int64(getEnvIntOrDefault("LATENCY_KILL_MS", 500)),
		BalanceFloor:     getEnvUint64OrDefault("BALANCE_FLOOR", 0),
		ThroughputPerSec: throughputCap,
		EmitMode:         emitMode,
		HTTPPort:         getEnvOrDefault("PORT", "5339"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SolanaRPC:        getEnvOrDefault("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		SolanaWS:         getEnvOrDefault("SOLANA_WS_ENDPOINT", "wss://api.mainnet-beta.solana.com"),
		ShutdownGraceMs:  getEnvIntOrDefault("SHUTDOWN_GRACE_MS", 10_000),
	}

	return cfg, nil
}

func parseTokenHex(s string) (models.TokenId, error) {
	var t models.TokenId
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("not valid hex: %w", err)
	}
	if len(b) != 32 {
		return t, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(t[:], b)
	return t, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvUint64OrDefault(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDecimalOrDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

// ExitCode maps a Load error (or nil) onto the process's exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*InvalidConfigError); ok {
		return 64
	}
	return 70
}
