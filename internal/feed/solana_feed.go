// Package feed ships a concrete Venue Adapter / WSS log parser: the spec
// treats these as external producers, but a reference implementation needs
// at least one to demonstrate C1 end to end. SolanaAccountFeed subscribes
// to pool account updates over solana-go's websocket client and decodes a
// generic constant-product reserve layout into models.PriceUpdateEvent, the same
// "subscribe, decode, update" shape as the pack's Raydium pool watcher.
package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/rawblock/arb-cycle-engine/internal/ingress"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// PoolSubscription names one physical pool account to watch and the static
// metadata (mints, venue, fee) the wire layout doesn't carry.
type PoolSubscription struct {
	PoolAddress solana.PublicKey
	SourceMint  models.TokenId
	TargetMint  models.TokenId
	Venue       models.VenueKind
	FeeBps      uint32
}

// SolanaAccountFeed is one reference ingress producer: an AccountSubscribe
// loop per pool, decoding raw account bytes into a PriceUpdateEvent and
// submitting it to the Aggregator. It holds no state the engine depends
// on — if it dies, the engine simply stops seeing fresh quotes for the
// pools it watched.
type SolanaAccountFeed struct {
	wsEndpoint string
	subs       []PoolSubscription
	sink       *ingress.Aggregator
}

// NewSolanaAccountFeed builds a feed that will subscribe to every sub in
// subs once Run is called.
func NewSolanaAccountFeed(wsEndpoint string, subs []PoolSubscription, sink *ingress.Aggregator) *SolanaAccountFeed {
	return &SolanaAccountFeed{wsEndpoint: wsEndpoint, subs: subs, sink: sink}
}

// Run connects to the Solana websocket endpoint and launches one
// subscription goroutine per configured pool. It blocks until ctx is
// cancelled.
func (f *SolanaAccountFeed) Run(ctx context.Context) error {
	client, err := ws.Connect(ctx, f.wsEndpoint)
	if err != nil {
		return fmt.Errorf("solana ws connect: %w", err)
	}
	defer client.Close()

	for _, sub := range f.subs {
		go f.watchPool(ctx, client, sub)
	}

	<-ctx.Done()
	return nil
}

func (f *SolanaAccountFeed) watchPool(ctx context.Context, client *ws.Client, sub PoolSubscription) {
	subscription, err := client.AccountSubscribe(sub.PoolAddress, rpc.CommitmentConfirmed)
	if err != nil {
		log.Printf("[Feed] failed to subscribe to pool %s: %v", sub.PoolAddress, err)
		return
	}
	defer subscription.Unsubscribe()

	log.Printf("[Feed] subscribed to pool %s (%s)", sub.PoolAddress, sub.Venue)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-subscription.Response():
			if !ok {
				log.Printf("[Feed] subscription closed for pool %s", sub.PoolAddress)
				return
			}
			if update.Value.Data == nil {
				continue
			}
			state, err := decodeConstantProductState(update.Value.Data.GetBinary())
			if err != nil {
				log.Printf("[Feed] failed to decode pool %s: %v", sub.PoolAddress, err)
				continue
			}

			event := eventFromState(sub, state, uint64(update.Context.Slot))
			f.sink.Submit(event)
		}
	}
}

// constantProductState is the minimal reserve pair a generic AMM account
// layout is assumed to carry — the same two uint64 reserve fields the
// pack's Raydium decoder reads, without the venue-specific surrounding
// fields this engine doesn't need.
type constantProductState struct {
	BaseReserve  uint64
	QuoteReserve uint64
}

func decodeConstantProductState(data []byte) (constantProductState, error) {
	const reserveOffset = 32
	if len(data) < reserveOffset+16 {
		return constantProductState{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	return constantProductState{
		BaseReserve:  binary.LittleEndian.Uint64(data[reserveOffset : reserveOffset+8]),
		QuoteReserve: binary.LittleEndian.Uint64(data[reserveOffset+8 : reserveOffset+16]),
	}, nil
}

func eventFromState(sub PoolSubscription, state constantProductState, slot uint64) models.PriceUpdateEvent {
	var pool models.PoolAddress
	copy(pool[:], sub.PoolAddress[:])

	rate := 0.0
	if state.BaseReserve > 0 {
		rate = float64(state.QuoteReserve) / float64(state.BaseReserve)
	}

	return models.PriceUpdateEvent{
		PoolAddress:  pool,
		Venue:        sub.Venue,
		SourceMint:   sub.SourceMint,
		TargetMint:   sub.TargetMint,
		NewRate:      rate,
		NewFeeBps:    sub.FeeBps,
		NewLiquidity: state.BaseReserve,
		Slot:         slot,
		ArrivalNs:    time.Now().UnixNano(),
	}
}
