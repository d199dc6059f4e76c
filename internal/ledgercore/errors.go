// Package ledgercore defines the error kinds shared by the UTXO repository
// and the ledger engine, and the propagation policy each kind implies.
package ledgercore

import "errors"

// Sentinel error kinds. Callers should use errors.Is against these, since
// every returned error wraps one of them with operation-specific context.
var (
	// ErrRowNotFound means the referenced row (e.g. an unknown outpoint)
	// does not exist. The caller should log and skip; it is likely a
	// UTXO this core doesn't track.
	ErrRowNotFound = errors.New("row not found")

	// ErrConflictingReservation means a UTXO is already reserved to a
	// different batch than the one requesting reservation. The caller
	// should abort and retry with a fresh selection.
	ErrConflictingReservation = errors.New("utxo already reserved to a different batch")

	// ErrAlreadyTerminal means a conditional update matched zero rows
	// because the target was already in its terminal state. This is
	// success-by-concurrency: the caller rolls back its transaction and
	// does nothing further.
	ErrAlreadyTerminal = errors.New("operation already applied")

	// ErrLedgerImbalance means a set of entries built for a posting did
	// not sum to zero. This is an invariant violation: abort and refuse
	// commit, never swallow it.
	ErrLedgerImbalance = errors.New("ledger transaction does not balance")

	// ErrSerialization means template metadata could not be serialized.
	// This is a fatal configuration error, surfaced at startup.
	ErrSerialization = errors.New("template metadata serialization failed")
)

// Database wraps an underlying database/sql or driver error. Callers
// bubble this up and retry the whole operation from scratch; nothing is
// retried inside the core.
type Database struct {
	Op  string
	Err error
}

func (e *Database) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Database) Unwrap() error { return e.Err }

// WrapDatabase annotates err (a raw database/sql error) as a Database
// error kind for op.
func WrapDatabase(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Database{Op: op, Err: err}
}
