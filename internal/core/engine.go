package core

import (
	"encoding/json"
	"fmt"
	"time"

	"ShareVault/internal/auth"
	"ShareVault/internal/batch"
	"ShareVault/internal/event"
	"ShareVault/internal/ledger"
	"ShareVault/internal/observability"
	"ShareVault/internal/token"
	"ShareVault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

// Engine is the single-threaded command processor. Every mutation of
// the token set, registry, vault and ledger client flows through
// ProcessCommand; nothing else writes state.
type Engine struct {
	sequence    int64
	hasher      *StateHasher
	tokens      *token.Set
	registry    *auth.Registry
	vault       *vault.Vault
	client      *ledger.Client
	executor    *batch.Executor
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	lastEvictions int64

	publishChan chan<- Output
}

// Output pairs the applied command's envelope with per-operation batch
// results (nil for single-operation commands).
type Output struct {
	Envelope *event.Envelope
	Results  []batch.Result
}

func NewEngine(
	startSequence int64,
	lruCapacity int,
	tokens *token.Set,
	registry *auth.Registry,
	v *vault.Vault,
	client *ledger.Client,
	publishChan chan<- Output,
	metrics *observability.Metrics,
) *Engine {
	e := &Engine{
		sequence:    startSequence,
		hasher:      NewStateHasher(),
		tokens:      tokens,
		registry:    registry,
		vault:       v,
		client:      client,
		idempotency: NewIdempotencyChecker(lruCapacity),
		metrics:     metrics,
		publishChan: publishChan,
	}
	e.executor = batch.NewExecutor(v, client, e)
	return e
}

// Checkpoint captures all mutable state and returns its restore
// function. Taken once per strict batch before the first operation.
func (e *Engine) Checkpoint() func() {
	tokenSnap := e.tokens.Snapshot()
	registrySnap := e.registry.Snapshot()
	vaultSnap := e.vault.Snapshot()
	clientSnap := e.client.Snapshot()
	return func() {
		e.tokens.Restore(tokenSnap)
		e.registry.Restore(registrySnap)
		e.vault.Restore(vaultSnap)
		e.client.Restore(clientSnap)
	}
}

// ProcessCommand is the main processing pipeline
func (e *Engine) ProcessCommand(cmd event.Command) error {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Step 1: Idempotency check
	if e.idempotency.IsDuplicate(commandType, idempotencyKey) {
		if e.metrics != nil {
			e.metrics.IdempotencyDuplicates.WithLabelValues(commandType).Inc()
			e.metrics.CoreCommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return nil
	}

	// Step 2: Dispatch
	payload, results, err := e.dispatchCommand(cmd)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CoreCommandsRejected.WithLabelValues(commandType, "rejected").Inc()
		}
		// A rejected command still consumes its idempotency key so a
		// retry with the same key does not get a second attempt at a
		// different outcome.
		e.idempotency.MarkProcessed(commandType, idempotencyKey)
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 3: Post-checks
	if invErr := e.vault.CheckInvariants(); invErr != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", invErr))
	}

	// Step 4: State hash
	hashStart := time.Now()
	stateDigest := e.computeStateDigest()
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	payloadBytes, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		panic(fmt.Sprintf("FATAL: cannot marshal result payload: %v", marshalErr))
	}

	envelope := &event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		Timestamp:      e.getCommandTimestamp(cmd),
		SourceSequence: cmd.SourceSequence(),
		Payload:        payloadBytes,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	// Step 5: Emit. Non-blocking send with drop — subscribers can
	// resync from a state query if they fall behind.
	output := Output{Envelope: envelope, Results: results}
	select {
	case e.publishChan <- output:
	default:
		if e.metrics != nil {
			e.metrics.PublishDrops.Inc()
		}
	}

	// Step 6: Mark as processed
	e.idempotency.MarkProcessed(commandType, idempotencyKey)
	e.sequence++

	if e.metrics != nil {
		e.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		e.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.Size()))
		if ev := e.idempotency.Evictions(); ev > e.lastEvictions {
			e.metrics.DedupLRUEvictions.Add(float64(ev - e.lastEvictions))
			e.lastEvictions = ev
		}
		e.vault.EachReserve(func(tok common.Address, r vault.Reserve) {
			e.metrics.VaultReserveAmount.WithLabelValues(tok.Hex()).Set(float64(r.Amount))
			e.metrics.VaultReserveShares.WithLabelValues(tok.Hex()).Set(float64(r.Shares))
		})
	}

	return nil
}

// depositResult is the envelope payload for deposits and withdrawals.
type depositResult struct {
	AmountOut int64 `json:"amount_out"`
	SharesOut int64 `json:"shares_out"`
}

type transferResult struct {
	Shares int64 `json:"shares"`
}

type approvalResult struct {
	Approved bool   `json:"approved"`
	Nonce    uint64 `json:"nonce"`
}

type clientDepositResult struct {
	EntryID int64 `json:"entry_id"`
}

type batchResult struct {
	Results []batch.Result `json:"results"`
}

func (e *Engine) dispatchCommand(cmd event.Command) (interface{}, []batch.Result, error) {
	switch c := cmd.(type) {
	case *event.Deposit:
		amountOut, sharesOut, err := e.vault.Deposit(c.Caller, c.Token, c.From, c.To, c.Amount, c.Shares)
		if err != nil {
			return nil, nil, err
		}
		return depositResult{AmountOut: amountOut, SharesOut: sharesOut}, nil, nil

	case *event.Withdraw:
		amountOut, sharesOut, err := e.vault.Withdraw(c.Caller, c.Token, c.From, c.To, c.Amount, c.Shares)
		if err != nil {
			return nil, nil, err
		}
		return depositResult{AmountOut: amountOut, SharesOut: sharesOut}, nil, nil

	case *event.Transfer:
		if err := e.vault.Transfer(c.Caller, c.Token, c.From, c.To, c.Shares); err != nil {
			return nil, nil, err
		}
		return transferResult{Shares: c.Shares}, nil, nil

	case *event.SetApproval:
		var err error
		if c.Signed() {
			err = e.registry.SetApprovalSigned(c.User, c.Agent, c.Approved, c.Nonce, c.Signature)
		} else {
			err = e.registry.SetApproval(c.Caller, c.User, c.Agent, c.Approved)
		}
		if err != nil {
			return nil, nil, err
		}
		return approvalResult{Approved: c.Approved, Nonce: e.registry.Nonce(c.User)}, nil, nil

	case *event.ClientDeposit:
		entryID, err := e.client.Deposit(c.Caller, c.Token, c.Amount, c.FromVaultBalance)
		if err != nil {
			return nil, nil, err
		}
		return clientDepositResult{EntryID: entryID}, nil, nil

	case *event.ClientWithdraw:
		if err := e.client.Withdraw(c.Caller, c.EntryID, c.Amount, c.ToVaultBalance); err != nil {
			return nil, nil, err
		}
		return clientDepositResult{EntryID: c.EntryID}, nil, nil

	case *event.Batch:
		if e.metrics != nil {
			e.metrics.BatchSize.Observe(float64(len(c.Operations)))
		}
		results, err := e.executor.Execute(c.Caller, c.Operations, c.RevertOnFail)
		if e.metrics != nil {
			for _, r := range results {
				outcome := "ok"
				if !r.OK {
					outcome = "failed"
				}
				e.metrics.BatchOpsExecuted.WithLabelValues(string(r.Type), outcome).Inc()
			}
		}
		if err != nil {
			if e.metrics != nil {
				e.metrics.BatchRollbacks.Inc()
			}
			return nil, nil, err
		}
		return batchResult{Results: results}, results, nil

	default:
		return nil, nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// computeStateDigest creates canonical bytes for the state hash. The
// digest covers the vault's reserves and balances plus the ledger
// client's entry arena; the token set and registry are reflected
// through the vault invariants they feed.
func (e *Engine) computeStateDigest() []byte {
	digest := e.vault.StateDigest()

	total := e.client.TotalDeposits()
	for id := int64(0); id < total; id++ {
		entry, err := e.client.Entry(id)
		if err != nil {
			panic(fmt.Sprintf("FATAL: entry %d vanished during digest: %v", id, err))
		}
		digest = appendInt64LE(digest, entry.ID)
		digest = append(digest, entry.User[:]...)
		digest = append(digest, entry.Token[:]...)
		digest = appendInt64LE(digest, entry.DepositedShares)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// getCommandTimestamp extracts the versioned timestamp from a command.
// The core never calls time.Now(); all timestamps are inputs.
func (e *Engine) getCommandTimestamp(cmd event.Command) time.Time {
	switch c := cmd.(type) {
	case *event.Deposit:
		return c.Timestamp
	case *event.Withdraw:
		return c.Timestamp
	case *event.Transfer:
		return c.Timestamp
	case *event.SetApproval:
		return c.Timestamp
	case *event.ClientDeposit:
		return c.Timestamp
	case *event.ClientWithdraw:
		return c.Timestamp
	case *event.Batch:
		return c.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getCommandTimestamp called with unhandled command type %T", cmd))
	}
}

// Sequence returns the next sequence number the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.GetPrevHash()
}
