// Package utxo implements the persistent repository of observed Bitcoin
// outputs and their lifecycle transitions, modeled on the teacher's
// internal/storage wallet-UTXO table (status transitions, conditional
// updates, ordered read views) generalized to the double-entry ledger's
// richer per-UTXO ledger-transaction bookkeeping.
package utxo

import (
	"time"

	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// UTXO is one row of bria_utxos: an observed output and everything the
// ledger needs to know about where it stands in its lifecycle.
type UTXO struct {
	KeychainId primitives.KeychainId
	OutPoint   primitives.OutPoint

	WalletId           primitives.WalletId
	Kind               primitives.KeychainKind
	AddressIdx         uint32
	Address            string
	ScriptHex          string
	Value              money.Satoshis
	SatsPerVByte       float64
	SelfPay            bool

	BdkSpent    bool
	BlockHeight *uint32

	SpendingBatchId *primitives.BatchId

	PendingIncomeLedgerTxId   primitives.LedgerTransactionId
	ConfirmedIncomeLedgerTxId *primitives.LedgerTransactionId
	PendingSpendLedgerTxId    *primitives.LedgerTransactionId
	ConfirmedSpendLedgerTxId  *primitives.LedgerTransactionId

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Reservable reports whether u may be reserved into a new batch: observed
// unspent on chain and not already reserved to any batch (invariant 5).
func (u UTXO) Reservable() bool {
	return !u.BdkSpent && u.SpendingBatchId == nil
}

// NewUTXO is the input to PersistUTXO: everything known about a freshly
// observed output before it has a row.
type NewUTXO struct {
	KeychainId primitives.KeychainId
	OutPoint   primitives.OutPoint

	WalletId     primitives.WalletId
	Kind         primitives.KeychainKind
	AddressIdx   uint32
	Address      string
	ScriptHex    string
	Value        money.Satoshis
	SatsPerVByte float64
	SelfPay      bool

	// PendingIncomeLedgerTxId is caller-chosen and stamped on the row when
	// it is inserted; a duplicate detection leaves the existing row's id
	// unchanged.
	PendingIncomeLedgerTxId primitives.LedgerTransactionId
}

// PersistedUTXO is returned by PersistUTXO when the row was newly
// inserted. PersistUTXO also hands back the open *sql.Tx it started for
// the insert; the caller reuses that same transaction to post the
// matching utxo_detected ledger entry before committing.
type PersistedUTXO struct {
	PendingIncomeLedgerTxId primitives.LedgerTransactionId
}

// ConfirmedUTXO is the prior state MarkUTXOConfirmed hands back so the
// caller can post utxo_settled with the correct already-spent parameter.
type ConfirmedUTXO struct {
	PriorPendingIncomeLedgerTxId primitives.LedgerTransactionId
	Value                        money.Satoshis
	Address                      string
	PriorPendingSpendLedgerTxId  *primitives.LedgerTransactionId
}

// ReservableUTXO is one row-locked candidate for batch reservation.
type ReservableUTXO struct {
	KeychainId                primitives.KeychainId
	IncomeAddress             string
	OutPoint                  primitives.OutPoint
	Value                     money.Satoshis
	SpendingBatchId           *primitives.BatchId
	ConfirmedIncomeLedgerTxId *primitives.LedgerTransactionId
}

// SpentUTXO is a UTXO row after MarkSpent has claimed it for a pending
// spend, returned in the deterministic change-accounting order spec.md
// §4.1 requires: settled value first, then higher fee-density first.
type SpentUTXO struct {
	KeychainId   primitives.KeychainId
	OutPoint     primitives.OutPoint
	Value        money.Satoshis
	SatsPerVByte float64
	Confirmed    bool
}

// OutPointRef names a UTXO row by its natural key for bulk operations
// (reserve, mark spent, confirm spend).
type OutPointRef struct {
	KeychainId primitives.KeychainId
	OutPoint   primitives.OutPoint
}
