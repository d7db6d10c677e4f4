package ledger

import "errors"

var (
	// ErrNotFound is returned when a receipt, version or batch does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntity is returned by CreateEntity when the identifier already exists.
	ErrDuplicateEntity = errors.New("receipt already exists")

	// ErrConcurrentModification is returned when a competing writer moved the version
	// counter, or when the per-receipt lock could not be obtained in time.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrStorageUnavailable wraps infrastructure failures of the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTxAborted is returned when the database rolled the whole transaction
	// back, as it does to the victim of a deadlock. Its savepoints are gone with it.
	ErrTxAborted = errors.New("transaction aborted by the database")

	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already committed or rolled back")
)

// IsRetryable reports whether err is a record-scoped conflict worth retrying
// from the record's savepoint. ErrTxAborted is not: it needs a new transaction.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateEntity) || errors.Is(err, ErrConcurrentModification)
}
