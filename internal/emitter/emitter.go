// Package emitter implements the Opportunity Emitter (C6): the thin
// boundary between validated, scored opportunities and the external
// Executor, plus the feedback write-back that calibrates C5's adaptive
// controllers.
package emitter

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// EmitMode selects whether submissions reach the real Executor.
type EmitMode int

const (
	EmitLive EmitMode = iota
	EmitDryRun
)

// Executor is the external boundary C6 hands opportunities to. A real
// implementation constructs, signs, and submits the Solana transaction
// bundle; the engine only supplies path, sizing, and tip.
type Executor interface {
	Submit(ctx context.Context, opportunity models.ValidatedOpportunity) (models.ExecutionResult, error)
}

// FeedbackSink receives the outcome of every submission for C5's adaptive
// controllers and per-pool tracking.
type FeedbackSink interface {
	RecordOutcome(opportunity models.ValidatedOpportunity, result models.ExecutionResult)
}

// Broadcaster is notified once per opportunity handed to Submit, regardless
// of emit mode. It exists so an external notification surface (a websocket
// hub) can observe every opportunity C6 emits without this package
// importing that surface directly.
type Broadcaster func(models.ValidatedOpportunity)

// defaultExecutorTimeout is the per-submission timeout after which a
// non-responding Executor call is treated as UNKNOWN.
const defaultExecutorTimeout = 30 * time.Second

// Emitter launches Executor submissions as detached tasks and collects
// completed ones without blocking the engine tick.
type Emitter struct {
	executor  Executor
	feedback  FeedbackSink
	mode      EmitMode
	timeout   time.Duration
	broadcast Broadcaster

	pending chan submissionResult
}

type submissionResult struct {
	opportunity models.ValidatedOpportunity
	result      models.ExecutionResult
}

// New builds an Emitter. pendingCapacity bounds the non-blocking result
// channel; a full channel means Collect must be called more often than
// submissions land, which should not happen given the Executor timeout.
// broadcast may be nil, in which case Submit notifies no one.
func New(executor Executor, feedback FeedbackSink, mode EmitMode, pendingCapacity int, broadcast Broadcaster) *Emitter {
	if pendingCapacity <= 0 {
		pendingCapacity = 256
	}
	return &Emitter{
		executor:  executor,
		feedback:  feedback,
		mode:      mode,
		timeout:   defaultExecutorTimeout,
		broadcast: broadcast,
		pending:   make(chan submissionResult, pendingCapacity),
	}
}

// Submit launches the opportunity as a detached goroutine awaiting the
// Executor; the engine task does not wait on it. In dry_run mode the call
// is only logged and never reaches the Executor. Every submission,
// dry_run or live, is also handed to the configured Broadcaster.
func (em *Emitter) Submit(opportunity models.ValidatedOpportunity) {
	if em.broadcast != nil {
		em.broadcast(opportunity)
	}

	if em.mode == EmitDryRun {
		log.Printf("[Emitter] dry_run: would submit opportunity legs=%d input=%d expected_output=%d",
			opportunity.Cycle.Len(), opportunity.InputAmount, opportunity.ExpectedOutput)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), em.timeout)
		defer cancel()

		result, err := em.executor.Submit(ctx, opportunity)
		if err != nil {
			result = models.ExecutionResult{
				Success:       false,
				FailureReason: models.FailureUnknown,
			}
			log.Printf("[Emitter] submission error id=%s: %v", uuid.NewString(), err)
		}

		select {
		case em.pending <- submissionResult{opportunity: opportunity, result: result}:
		default:
			log.Printf("[Emitter] pending result channel full, dropping feedback for one submission")
		}
	}()
}

// Collect drains every completed submission without blocking and applies
// feedback to the configured sink. Called once per tick (step 5 of the
// engine loop).
func (em *Emitter) Collect() int {
	count := 0
	for {
		select {
		case sr := <-em.pending:
			em.feedback.RecordOutcome(sr.opportunity, sr.result)
			count++
		default:
			return count
		}
	}
}

// NopExecutor is a placeholder Executor for stand-alone operation when no
// real Executor (wallet/signer, bundle submission) is wired in: it logs
// the opportunity and reports NoLanding, never touching a live wallet.
// Real deployments must supply their own Executor implementation; this
// exists so the engine can run end to end without one.
type NopExecutor struct{}

// Submit implements Executor.
func (NopExecutor) Submit(ctx context.Context, opportunity models.ValidatedOpportunity) (models.ExecutionResult, error) {
	log.Printf("[Emitter] NopExecutor: no real Executor configured, reporting NO_LANDING for opportunity legs=%d input=%d",
		opportunity.Cycle.Len(), opportunity.InputAmount)
	return models.ExecutionResult{
		Success:       false,
		FailureReason: models.FailureNoLanding,
	}, nil
}
