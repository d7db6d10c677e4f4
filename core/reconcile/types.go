package reconcile

import (
	"unicode/utf8"

	"receipt-ledger/core/ledger"
)

// DefaultActor is recorded when a request names no actor.
const DefaultActor = "system"

// Outcome is what happened to one record of a batch.
type Outcome string

const (
	// OutcomeInserted means the record produced the first version of a receipt.
	OutcomeInserted Outcome = "inserted"
	// OutcomeUpdated means the record produced a new version of an existing receipt.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUnchanged means the record equals the current version.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeFailed means the record was rejected.
	OutcomeFailed Outcome = "failed"
)

// BatchRequest is the input of ReconcileBatch.
type BatchRequest struct {
	// Label identifies the batch, usually the uploaded file name.
	Label string
	// Actor is recorded on every version and audit entry.
	Actor string
	// Rows are applied in order.
	Rows []Row
	// SourceObject is the archive key of the uploaded file, if any.
	SourceObject string
	// DryRun applies the batch and rolls it back. No batch row is written.
	DryRun bool
}

// Validate rejects an actor or label that does not fit the batch record.
func (r BatchRequest) Validate() error {
	if err := checkActor(r.Actor); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Label) > ledger.MaxLabelLength {
		return invalid("label", "must be at most %d characters", ledger.MaxLabelLength)
	}
	return nil
}

func checkActor(actor string) error {
	if utf8.RuneCountInString(actor) > ledger.MaxActorLength {
		return invalid("actor", "must be at most %d characters", ledger.MaxActorLength)
	}
	return nil
}

// RecordResult is the outcome of one row.
type RecordResult struct {
	Line          int                  `json:"line,omitempty"`
	Identifier    string               `json:"receipt_number"`
	Outcome       Outcome              `json:"outcome"`
	VersionNumber int                  `json:"version_number,omitempty"`
	Changes       []ledger.FieldChange `json:"changes,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// BatchResult is the tally of one batch.
type BatchResult struct {
	BatchID   string             `json:"batch_id,omitempty"`
	Label     string             `json:"file_name"`
	Status    ledger.BatchStatus `json:"status"`
	DryRun    bool               `json:"dry_run"`
	Inserted  int                `json:"inserted"`
	Updated   int                `json:"updated"`
	Unchanged int                `json:"unchanged"`
	Failed    int                `json:"failed"`
	Failures  []ledger.Failure   `json:"failures"`
	Records   []RecordResult     `json:"records"`
}

func (r *BatchResult) add(rec RecordResult) {
	r.Records = append(r.Records, rec)
	switch rec.Outcome {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeFailed:
		r.Failed++
		r.Failures = append(r.Failures, ledger.Failure{Identifier: rec.Identifier, Line: rec.Line, Reason: rec.Error})
	}
}

// restart drops every record outcome ahead of a new attempt.
func (r *BatchResult) restart() {
	r.BatchID = ""
	r.Inserted, r.Updated, r.Unchanged, r.Failed = 0, 0, 0, 0
	r.Records = r.Records[:0]
	r.Failures = []ledger.Failure{}
}

// reset drops every record outcome and leaves a single batch-level failure.
func (r *BatchResult) reset(reason string) {
	r.Status = ledger.BatchFailed
	r.Inserted, r.Updated, r.Unchanged, r.Failed = 0, 0, 0, 0
	r.Records = []RecordResult{}
	r.Failures = []ledger.Failure{{Reason: reason}}
}
