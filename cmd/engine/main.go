package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/internal/api"
	"github.com/rawblock/arb-cycle-engine/internal/config"
	"github.com/rawblock/arb-cycle-engine/internal/emitter"
	"github.com/rawblock/arb-cycle-engine/internal/engine"
	"github.com/rawblock/arb-cycle-engine/internal/feed"
	"github.com/rawblock/arb-cycle-engine/internal/graph"
	"github.com/rawblock/arb-cycle-engine/internal/ingress"
	"github.com/rawblock/arb-cycle-engine/internal/store"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

func main() {
	log.Println("Starting Multi-Hop Arbitrage Cycle Engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("FATAL: configuration invalid: %v", err)
		os.Exit(config.ExitCode(err))
	}

	// ─── Optional persistence (token/pool registry snapshot) ─────────────
	var dbStore *store.PostgresStore
	if cfg.DatabaseURL != "" {
		dbStore, err = store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without snapshot persistence: %v", err)
		} else {
			defer dbStore.Close()
			if err := dbStore.InitSchema(); err != nil {
				log.Printf("Warning: snapshot schema init failed: %v", err)
			}
		}
	}

	poolGraph := graph.New()

	if dbStore != nil {
		snap, err := dbStore.LoadSnapshot(context.Background())
		if err != nil {
			log.Printf("Warning: failed to load startup snapshot: %v", err)
		} else {
			poolGraph.Restore(snap)
			log.Printf("Restored %d tokens / %d pools from snapshot", len(snap.Tokens), len(snap.Pools))
		}
	}

	agg := ingress.New()

	// ─── Solana ingress producer (optional; venue adapters are external
	// collaborators, but the engine ships one reference producer so C1 can
	// be demonstrated end to end) ─────────────────────────────────────────
	subs, err := parsePoolSubscriptions(os.Getenv("POOL_SUBSCRIPTIONS"))
	if err != nil {
		log.Printf("Warning: failed to parse POOL_SUBSCRIPTIONS, running with no ingress producer: %v", err)
	} else if len(subs) > 0 {
		solanaFeed := feed.NewSolanaAccountFeed(cfg.SolanaWS, subs, agg)
		feedCtx, cancelFeed := context.WithCancel(context.Background())
		defer cancelFeed()
		go func() {
			if err := solanaFeed.Run(feedCtx); err != nil {
				log.Printf("[Feed] solana account feed stopped: %v", err)
			}
		}()
	} else {
		log.Println("No POOL_SUBSCRIPTIONS configured — engine running with no ingress producer")
	}

	oracle := buildOracle()
	balanceSource := func() uint64 { return getEnvUint64OrDefault("EXECUTOR_BASE_BALANCE", ^uint64(0)) }

	// ─── WebSocket hub + HTTP diagnostics surface ────────────────────────
	wsHub := api.NewHub()
	go wsHub.Run()

	broadcast := func(opp models.ValidatedOpportunity) {
		payload, err := json.Marshal(opp)
		if err != nil {
			log.Printf("[API] failed to marshal opportunity for broadcast: %v", err)
			return
		}
		api.BroadcastOpportunity(wsHub, payload)
	}

	eng := engine.New(cfg, poolGraph, agg, emitter.NopExecutor{}, oracle, balanceSource, nil, broadcast)

	router := api.SetupRouter(eng, dbStore, wsHub, cfg)

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	go func() {
		if err := eng.Run(engineCtx); err != nil {
			log.Printf("FATAL: engine invariant violated: %v", err)
			os.Exit(70)
		}
	}()

	go func() {
		if err := router.Run(":" + cfg.HTTPPort); err != nil {
			log.Printf("[API] HTTP server stopped: %v", err)
		}
	}()

	// ─── Graceful shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutdown requested, draining in-flight submissions...")
	cancelEngine()
	time.Sleep(time.Duration(cfg.ShutdownGraceMs) * time.Millisecond)

	if dbStore != nil {
		snap := poolGraph.Snapshot()
		if err := dbStore.SaveSnapshot(context.Background(), snap); err != nil {
			log.Printf("Warning: failed to persist shutdown snapshot: %v", err)
		} else {
			log.Printf("Persisted shutdown snapshot: %d tokens / %d pools", len(snap.Tokens), len(snap.Pools))
		}
	}

	log.Println("Engine exited cleanly.")
}

// buildOracle supplies a fixed-price placeholder USD oracle for
// stand-alone operation: a constant read from BASE_MINT_USD_PRICE. Real
// deployments inject their own engine.BaseMintUSDOracle backed by
// whichever price feed they pick as
// authoritative.
func buildOracle() engine.BaseMintUSDOracle {
	priceStr := getEnvOrDefault("BASE_MINT_USD_PRICE", "1")
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		price = decimal.NewFromInt(1)
	}
	return func(slot uint64) (decimal.Decimal, error) {
		return price, nil
	}
}

// parsePoolSubscriptions decodes POOL_SUBSCRIPTIONS, a ';'-separated list
// of 'poolAddress,sourceMintHex,targetMintHex,venue,feeBps' tuples, into
// feed.PoolSubscription values. An empty string yields no subscriptions.
func parsePoolSubscriptions(raw string) ([]feed.PoolSubscription, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []feed.PoolSubscription
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ",")
		if len(fields) != 5 {
			continue
		}

		poolPub, err := solana.PublicKeyFromBase58(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		sourceMint, err := parseTokenHex(fields[1])
		if err != nil {
			continue
		}
		targetMint, err := parseTokenHex(fields[2])
		if err != nil {
			continue
		}
		venue := venueFromString(fields[3])
		feeBps := getUintField(fields[4])

		out = append(out, feed.PoolSubscription{
			PoolAddress: poolPub,
			SourceMint:  sourceMint,
			TargetMint:  targetMint,
			Venue:       venue,
			FeeBps:      uint32(feeBps),
		})
	}
	return out, nil
}

func venueFromString(s string) models.VenueKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AMM_STABLE":
		return models.VenueAMMStable
	case "CLMM":
		return models.VenueCLMM
	case "DLMM":
		return models.VenueDLMM
	default:
		return models.VenueAMMConstantProduct
	}
}

func parseTokenHex(s string) (models.TokenId, error) {
	var t models.TokenId
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, err
	}
	if len(b) != 32 {
		return t, errShortMint
	}
	copy(t[:], b)
	return t, nil
}

var errShortMint = shortMintError{}

type shortMintError struct{}

func (shortMintError) Error() string { return "mint hex must decode to exactly 32 bytes" }

func getUintField(s string) uint64 {
	v, err := parseUintSafe(s)
	if err != nil {
		return 0
	}
	return v
}

func parseUintSafe(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errShortMint
		}
		v = v*10 + uint64(r-'0')
	}
	return v, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvUint64OrDefault(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := parseUintSafe(v)
	if err != nil {
		return fallback
	}
	return n
}
