package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/lock"
)

// Engine drives batches and manual edits against a ledger store.
type Engine struct {
	store   ledger.Store
	log     *zap.Logger
	cfg     Config
	audit   AuditLogger
	locker  lock.Locker
	lockTTL time.Duration
	now     func() time.Time
}

// NewEngine creates an engine. The store is the only shared state it touches.
func NewEngine(store ledger.Store, log *zap.Logger, cfg Config) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		log:   log,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithLocker adds a cross-instance receipt lock taken before a receipt is touched
// and held until the batch ends. Obtaining it in time is treated as a conflict.
func (e *Engine) WithLocker(l lock.Locker, ttl time.Duration) *Engine {
	e.locker = l
	e.lockTTL = ttl
	return e
}

// Store returns the ledger store the engine writes to.
func (e *Engine) Store() ledger.Store {
	return e.store
}

// batchRun is the state of one ReconcileBatch call.
type batchRun struct {
	req    BatchRequest
	actor  string
	at     time.Time
	batch  *ledger.Batch
	result *BatchResult
	locks  map[string]lock.Lock
}

// ReconcileBatch applies rows as one atomic unit. Record-level problems are
// reported in the result and do not stop the batch. When the database aborts
// the transaction itself, the batch restarts from its first record up to
// MaxRetries times. Other infrastructure failures and cancellation roll the
// whole batch back: the returned result then carries zero counts and a single
// batch-level failure, and the error says why.
func (e *Engine) ReconcileBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	run := &batchRun{
		req:   req,
		actor: req.Actor,
		at:    e.now(),
		locks: make(map[string]lock.Lock),
		result: &BatchResult{
			Label:    req.Label,
			Status:   ledger.BatchInProgress,
			DryRun:   req.DryRun,
			Failures: []ledger.Failure{},
			Records:  make([]RecordResult, 0, len(req.Rows)),
		},
	}
	if run.actor == "" {
		run.actor = DefaultActor
	}
	if err := (BatchRequest{Label: req.Label, Actor: run.actor}).Validate(); err != nil {
		return nil, err
	}
	defer e.releaseLocks(ctx, run)

	log := e.log.With(zap.String("label", req.Label), zap.String("actor", run.actor), zap.Bool("dry_run", req.DryRun))
	log.Info("Batch started", zap.Int("rows", len(req.Rows)))

	// 1. Normalize every row before the transaction opens
	records := normalizeAll(ctx, req.Rows, e.cfg.workers())
	if err := ctx.Err(); err != nil {
		return e.abort(ctx, run, nil, err)
	}

	// 2. Apply them in one transaction, restarting it if the database gives up on it
	maxRetries := e.cfg.retries()
	for attempt := 0; ; attempt++ {
		tx, err := e.runOnce(ctx, run, records, log)
		if err == nil {
			return run.result, nil
		}
		if !errors.Is(err, ledger.ErrTxAborted) || attempt >= maxRetries {
			return e.abort(ctx, run, tx, err)
		}

		if tx != nil {
			_ = tx.Rollback()
		}
		log.Warn("Batch transaction aborted by the database, restarting",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		run.batch = nil
		run.result.restart()
		if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
			return e.abort(ctx, run, nil, err)
		}
	}
}

// runOnce is one attempt of a batch: open the transaction, apply every record
// in input order and commit. It returns the transaction it opened, if any.
func (e *Engine) runOnce(ctx context.Context, run *batchRun, records []normalized, log *zap.Logger) (ledger.Tx, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if !run.req.DryRun {
		run.batch = &ledger.Batch{
			Label:        run.req.Label,
			Actor:        run.actor,
			SourceObject: run.req.SourceObject,
			Status:       ledger.BatchInProgress,
			StartedAt:    run.at,
		}
		if err := tx.CreateBatch(ctx, run.batch); err != nil {
			return tx, err
		}
		run.result.BatchID = run.batch.ID
		log = log.With(zap.String("batch_id", run.batch.ID))
	}

	for i, n := range records {
		if err := ctx.Err(); err != nil {
			return tx, err
		}

		if n.err != nil {
			rec := RecordResult{Line: n.record.Line, Identifier: n.record.Identifier, Outcome: OutcomeFailed, Error: n.err.Error()}
			log.Warn("Record rejected", zap.Int("line", rec.Line), zap.String("receipt_number", rec.Identifier), zap.Error(n.err))
			run.result.add(rec)
			continue
		}

		rec, err := e.applyWithRetry(ctx, tx, run, i, n.record)
		if err != nil {
			return tx, err
		}
		if rec.Outcome == OutcomeFailed {
			log.Warn("Record failed", zap.Int("line", rec.Line), zap.String("receipt_number", rec.Identifier), zap.String("error", rec.Error))
		}
		run.result.add(rec)
	}

	if run.req.DryRun {
		if err := tx.Rollback(); err != nil {
			log.Warn("Dry run rollback failed", zap.Error(err))
		}
		run.result.Status = ledger.BatchCompleted
		log.Info("Dry run finished", counts(run.result)...)
		return tx, nil
	}

	finished := e.now()
	run.batch.Status = ledger.BatchCompleted
	run.batch.FinishedAt = &finished
	run.batch.Inserted = run.result.Inserted
	run.batch.Updated = run.result.Updated
	run.batch.Unchanged = run.result.Unchanged
	run.batch.Failed = run.result.Failed
	run.batch.Failures = run.result.Failures
	if err := tx.FinishBatch(ctx, run.batch); err != nil {
		return tx, err
	}
	if err := tx.Commit(); err != nil {
		return tx, err
	}

	run.result.Status = ledger.BatchCompleted
	log.Info("Batch committed", counts(run.result)...)
	return tx, nil
}

func counts(r *BatchResult) []zap.Field {
	return []zap.Field{
		zap.Int("inserted", r.Inserted),
		zap.Int("updated", r.Updated),
		zap.Int("unchanged", r.Unchanged),
		zap.Int("failed", r.Failed),
	}
}

// applyWithRetry runs one record inside its own savepoint. Conflicts are rolled
// back to the savepoint and retried; a non-nil error ends the attempt.
func (e *Engine) applyWithRetry(ctx context.Context, tx ledger.Tx, run *batchRun, index int, rec Record) (RecordResult, error) {
	savepoint := fmt.Sprintf("rec_%d", index)
	maxRetries := e.cfg.retries()

	for attempt := 0; ; attempt++ {
		if err := tx.Savepoint(ctx, savepoint); err != nil {
			return RecordResult{}, err
		}

		res, err := e.apply(ctx, tx, run, rec)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ledger.ErrTxAborted) {
			return RecordResult{}, err
		}
		if rbErr := tx.RollbackTo(ctx, savepoint); rbErr != nil {
			return RecordResult{}, fmt.Errorf("%w (after %v)", rbErr, err)
		}

		failed := RecordResult{Line: rec.Line, Identifier: rec.Identifier, Outcome: OutcomeFailed}
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			failed.Error = verr.Error()
			return failed, nil
		case ledger.IsRetryable(err) && attempt < maxRetries:
			e.log.Debug("Retrying record",
				zap.String("receipt_number", rec.Identifier),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
				return RecordResult{}, err
			}
		case ledger.IsRetryable(err):
			failed.Error = fmt.Sprintf("gave up after %d attempts: %v", attempt+1, err)
			return failed, nil
		default:
			return RecordResult{}, err
		}
	}
}

// apply resolves the receipt, diffs the record and appends a version if needed.
func (e *Engine) apply(ctx context.Context, tx ledger.Tx, run *batchRun, rec Record) (RecordResult, error) {
	res := RecordResult{Line: rec.Line, Identifier: rec.Identifier}

	if err := e.obtain(ctx, run, rec.Identifier); err != nil {
		return res, err
	}

	entity, err := tx.FindEntity(ctx, rec.Identifier)
	if errors.Is(err, ledger.ErrNotFound) {
		entity, err = tx.CreateEntity(ctx, rec.Identifier)
	}
	if err != nil {
		return res, err
	}

	var current *ledger.Version
	if entity.CurrentVersionID != nil {
		if current, err = tx.CurrentVersion(ctx, entity); err != nil {
			return res, err
		}
	}

	diff := Diff(rec.Fields, current)
	if !diff.Changed {
		res.Outcome = OutcomeUnchanged
		res.VersionNumber = entity.CurrentNumber
		return res, nil
	}

	prov := ledger.Provenance{Origin: ledger.OriginBatchUpload, Actor: run.actor, At: run.at}
	if run.batch != nil {
		batchID := run.batch.ID
		prov.BatchID = &batchID
	}
	version, err := tx.AppendVersion(ctx, entity, rec.Fields, prov)
	if err != nil {
		return res, err
	}
	if err := e.audit.Record(ctx, tx, entity, version, diff.Changes, run.actor, run.at, ""); err != nil {
		return res, err
	}

	res.Outcome = OutcomeUpdated
	if current == nil {
		res.Outcome = OutcomeInserted
	}
	res.VersionNumber = version.Number
	res.Changes = diff.Changes
	return res, nil
}

// obtain takes the cross-instance lock of a receipt once per batch.
func (e *Engine) obtain(ctx context.Context, run *batchRun, identifier string) error {
	if e.locker == nil {
		return nil
	}
	if _, held := run.locks[identifier]; held {
		return nil
	}
	l, err := e.locker.Obtain(ctx, lockKey(identifier), e.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return fmt.Errorf("receipt %s is locked by another batch: %w", identifier, ledger.ErrConcurrentModification)
	}
	if err != nil {
		return err
	}
	run.locks[identifier] = l
	return nil
}

func (e *Engine) releaseLocks(ctx context.Context, run *batchRun) {
	ctx = context.WithoutCancel(ctx)
	for id, l := range run.locks {
		if err := l.Release(ctx); err != nil {
			e.log.Warn("Failed to release receipt lock", zap.String("receipt_number", id), zap.Error(err))
		}
	}
}

func lockKey(identifier string) string {
	return "receipt:" + identifier
}

// abort rolls the batch back and records it as failed in a fresh transaction.
func (e *Engine) abort(ctx context.Context, run *batchRun, tx ledger.Tx, cause error) (*BatchResult, error) {
	log := e.log.With(zap.String("label", run.req.Label))
	if run.batch != nil {
		log = log.With(zap.String("batch_id", run.batch.ID))
	}

	if tx != nil {
		if err := tx.Rollback(); err != nil && !errors.Is(err, ledger.ErrTxDone) {
			log.Warn("Rollback reported an error", zap.Error(err))
		}
	}
	log.Error("Batch rolled back", zap.Error(cause))

	run.result.reset(cause.Error())
	if !run.req.DryRun {
		e.markFailed(context.WithoutCancel(ctx), run, cause)
	}
	return run.result, fmt.Errorf("batch %q rolled back: %w", run.req.Label, cause)
}

// markFailed stores a failed batch row. Its absence is logged, not returned.
func (e *Engine) markFailed(ctx context.Context, run *batchRun, cause error) {
	finished := e.now()
	batch := &ledger.Batch{
		Label:        run.req.Label,
		Actor:        run.actor,
		SourceObject: run.req.SourceObject,
		Status:       ledger.BatchFailed,
		StartedAt:    run.at,
		FinishedAt:   &finished,
		Failures:     []ledger.Failure{{Reason: cause.Error()}},
	}
	if run.batch != nil {
		batch.ID = run.batch.ID
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		e.log.Error("Failed to record failed batch", zap.Error(err))
		return
	}
	if err := tx.CreateBatch(ctx, batch); err != nil {
		_ = tx.Rollback()
		e.log.Error("Failed to record failed batch", zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		e.log.Error("Failed to record failed batch", zap.Error(err))
		return
	}
	run.result.BatchID = batch.ID
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * 10 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
