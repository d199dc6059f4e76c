// Package primitives defines the typed identifiers and value types shared
// by every other package in the ledger core: opaque 128-bit IDs, the
// Bitcoin OutPoint, and the keychain kind enum.
package primitives

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// id is the common representation behind every opaque identifier below.
// Equality is the only operation callers get; nothing about the value is
// interpreted beyond that.
type id struct {
	uuid.UUID
}

func newID() id {
	return id{uuid.New()}
}

func idFromString(s string) (id, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return id{}, fmt.Errorf("parse id: %w", err)
	}
	return id{u}, nil
}

// Value implements driver.Valuer so every typed ID below can be passed
// directly as a database/sql query argument.
func (i id) Value() (driver.Value, error) {
	return i.String(), nil
}

// Scan implements sql.Scanner so every typed ID below can be read
// directly out of a database/sql row.
func (i *id) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		i.UUID = u
		return nil
	case []byte:
		u, err := uuid.Parse(string(v))
		if err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		i.UUID = u
		return nil
	case [16]byte:
		i.UUID = uuid.UUID(v)
		return nil
	default:
		return fmt.Errorf("scan id: unsupported type %T", src)
	}
}

// AccountId identifies a top-level custody account and its journal.
type AccountId struct{ id }

// NewAccountId generates a fresh AccountId.
func NewAccountId() AccountId { return AccountId{newID()} }

// ParseAccountId parses a textual AccountId.
func ParseAccountId(s string) (AccountId, error) {
	i, err := idFromString(s)
	return AccountId{i}, err
}

// WalletId identifies a wallet within an account.
type WalletId struct{ id }

// NewWalletId generates a fresh WalletId.
func NewWalletId() WalletId { return WalletId{newID()} }

// ParseWalletId parses a textual WalletId.
func ParseWalletId(s string) (WalletId, error) {
	i, err := idFromString(s)
	return WalletId{i}, err
}

// KeychainId identifies a derivation branch (external/internal) of a wallet.
type KeychainId struct{ id }

// NewKeychainId generates a fresh KeychainId.
func NewKeychainId() KeychainId { return KeychainId{newID()} }

// ParseKeychainId parses a textual KeychainId.
func ParseKeychainId(s string) (KeychainId, error) {
	i, err := idFromString(s)
	return KeychainId{i}, err
}

// BatchId identifies a set of queued payouts realized as one transaction.
type BatchId struct{ id }

// NewBatchId generates a fresh BatchId.
func NewBatchId() BatchId { return BatchId{newID()} }

// ParseBatchId parses a textual BatchId.
func ParseBatchId(s string) (BatchId, error) {
	i, err := idFromString(s)
	return BatchId{i}, err
}

// BatchGroupId identifies a group of batches built together.
type BatchGroupId struct{ id }

// NewBatchGroupId generates a fresh BatchGroupId.
func NewBatchGroupId() BatchGroupId { return BatchGroupId{newID()} }

// ParseBatchGroupId parses a textual BatchGroupId.
func ParseBatchGroupId(s string) (BatchGroupId, error) {
	i, err := idFromString(s)
	return BatchGroupId{i}, err
}

// PayoutId identifies a single queued payout.
type PayoutId struct{ id }

// NewPayoutId generates a fresh PayoutId.
func NewPayoutId() PayoutId { return PayoutId{newID()} }

// ParsePayoutId parses a textual PayoutId.
func ParsePayoutId(s string) (PayoutId, error) {
	i, err := idFromString(s)
	return PayoutId{i}, err
}

// LedgerJournalId identifies one account's append-only journal.
type LedgerJournalId struct{ id }

// NewLedgerJournalId generates a fresh LedgerJournalId.
func NewLedgerJournalId() LedgerJournalId { return LedgerJournalId{newID()} }

// ParseLedgerJournalId parses a textual LedgerJournalId.
func ParseLedgerJournalId(s string) (LedgerJournalId, error) {
	i, err := idFromString(s)
	return LedgerJournalId{i}, err
}

// LedgerTransactionId is the caller-chosen idempotency key for a posted
// ledger transaction. Callers generate it fresh per logical event and
// reuse it across retries so the engine's operations are idempotent.
type LedgerTransactionId struct{ id }

// NewLedgerTransactionId generates a fresh LedgerTransactionId.
func NewLedgerTransactionId() LedgerTransactionId { return LedgerTransactionId{newID()} }

// ParseLedgerTransactionId parses a textual LedgerTransactionId.
func ParseLedgerTransactionId(s string) (LedgerTransactionId, error) {
	i, err := idFromString(s)
	return LedgerTransactionId{i}, err
}

// LedgerAccountId identifies one ledger account: one of a wallet's seven
// sub-accounts, or a journal's contra account.
type LedgerAccountId struct{ id }

// NewLedgerAccountId generates a fresh LedgerAccountId.
func NewLedgerAccountId() LedgerAccountId { return LedgerAccountId{newID()} }

// ParseLedgerAccountId parses a textual LedgerAccountId.
func ParseLedgerAccountId(s string) (LedgerAccountId, error) {
	i, err := idFromString(s)
	return LedgerAccountId{i}, err
}
