package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"receipt-ledger/core/ledger"
)

// AmendRequest is a manual correction of one receipt.
type AmendRequest struct {
	Identifier string
	// Patch maps tracked field names to new raw values. Omitted fields keep
	// their current value.
	Patch  map[string]any
	Actor  string
	Reason string
}

// AmendResult is the outcome of Amend. Version is nil when nothing changed.
type AmendResult struct {
	Entity  ledger.Entity        `json:"receipt"`
	Version *ledger.Version      `json:"version"`
	Changes []ledger.FieldChange `json:"changes"`
}

// Amend merges a patch over the current version of a receipt and, if anything
// differs, appends a manual-edit version with the reason copied onto every
// audit entry. Conflicts are retried in a fresh transaction.
func (e *Engine) Amend(ctx context.Context, req AmendRequest) (*AmendResult, error) {
	if req.Actor == "" {
		req.Actor = DefaultActor
	}
	if err := checkActor(req.Actor); err != nil {
		return nil, err
	}
	for field := range req.Patch {
		if _, ok := ledger.LookupField(field); !ok {
			return nil, invalid(field, "is not an editable field")
		}
	}

	maxRetries := e.cfg.retries()
	for attempt := 0; ; attempt++ {
		res, err := e.amendOnce(ctx, req)
		if err == nil {
			if res.Version != nil {
				e.log.Info("Receipt amended",
					zap.String("receipt_number", req.Identifier),
					zap.Int("version", res.Version.Number),
					zap.String("actor", req.Actor),
					zap.Int("changes", len(res.Changes)))
			}
			return res, nil
		}
		if !(ledger.IsRetryable(err) || errors.Is(err, ledger.ErrTxAborted)) || attempt >= maxRetries {
			return nil, err
		}
		if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) amendOnce(ctx context.Context, req AmendRequest) (*AmendResult, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	entity, err := tx.FindEntity(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	if entity.Status == ledger.StatusVoided {
		return nil, fmt.Errorf("receipt %s: %w", req.Identifier, ErrVoided)
	}
	current, err := tx.CurrentVersion(ctx, entity)
	if err != nil {
		return nil, err
	}

	rec, err := Normalize(mergePatch(entity.Identifier, current.Fields, req.Patch))
	if err != nil {
		return nil, err
	}

	diff := Diff(rec.Fields, current)
	if !diff.Changed {
		return &AmendResult{Entity: *entity, Changes: []ledger.FieldChange{}}, nil
	}

	at := e.now()
	version, err := tx.AppendVersion(ctx, entity, rec.Fields, ledger.Provenance{
		Origin: ledger.OriginManualEdit,
		Actor:  req.Actor,
		At:     at,
	})
	if err != nil {
		return nil, err
	}
	if err := e.audit.Record(ctx, tx, entity, version, diff.Changes, req.Actor, at, req.Reason); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &AmendResult{Entity: *entity, Version: version, Changes: diff.Changes}, nil
}

// mergePatch renders the current fields as a row and overlays the patch.
func mergePatch(identifier string, current ledger.Fields, patch map[string]any) Row {
	values := make(map[string]any, len(ledger.TrackedFields)+1)
	values[ledger.FieldReceiptNumber] = identifier
	for _, d := range ledger.TrackedFields {
		values[d.Name] = d.Format(&current)
	}
	for field, v := range patch {
		values[field] = v
	}
	return Row{Values: values}
}

// SetStatus voids or restores a receipt. Versions and audit entries are untouched.
func (e *Engine) SetStatus(ctx context.Context, identifier string, status ledger.Status, actor string) (*ledger.Entity, error) {
	if !status.IsValid() {
		return nil, invalid("status", "%q is not one of active, voided", status)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	entity, err := tx.FindEntity(ctx, identifier)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if entity.Status == status {
		_ = tx.Rollback()
		return nil, fmt.Errorf("receipt %s is already %s: %w", identifier, status, ErrInvalidTransition)
	}
	if err := tx.SetStatus(ctx, entity, status); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if actor == "" {
		actor = DefaultActor
	}
	e.log.Info("Receipt status changed",
		zap.String("receipt_number", identifier),
		zap.String("status", string(status)),
		zap.String("actor", actor))
	return entity, nil
}

// IsValidation reports whether err is a record validation failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
