package ledger

import (
	"time"

	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// UTXODetectedParams posts utxo_detected: a newly observed output adds to
// both the on-chain and logical incoming queues, and reserves its share
// of the eventual spending fee.
type UTXODetectedParams struct {
	Satoshis                money.Satoshis
	EncumberedSpendingFeeSats money.Satoshis
}

// UTXOSettledParams posts utxo_settled. If AlreadySpentTxId is set, a
// spend was detected on this output before its confirmation arrived, so
// the move into the at-rest accounts is elided per spec.md §4.3's
// critical ordering rule.
type UTXOSettledParams struct {
	Satoshis         money.Satoshis
	ConfirmationTime time.Time
	AlreadySpentTxId *primitives.LedgerTransactionId
}

// PayoutQueuedParams posts payout_queued: funds move into the encumbered
// logical-outgoing queue ahead of batch construction.
type PayoutQueuedParams struct {
	Satoshis    money.Satoshis
	Destination string
}

// WalletTransactionSummary describes one wallet's participation in a
// batch transaction: the inputs it contributed (and how much of that
// input value was already confirmed), the change it expects back, and
// its share of the transaction fee. batch_created and spend_detected
// both key off this record per wallet; the amount actually paid to
// destinations is never stored directly, it is derived as
// TotalUtxoIn - ChangeSats - FeeSats.
type WalletTransactionSummary struct {
	TotalUtxoIn      money.Satoshis
	TotalUtxoSettled money.Satoshis
	ChangeSats       money.Satoshis
	FeeSats          money.Satoshis

	// EncumberedFeesReleased is batch_created-only: the fee amount
	// previously encumbered against this wallet's inputs, released now
	// that the batch has reserved its actual fee share.
	EncumberedFeesReleased money.Satoshis
}

// BatchCreatedParams posts batch_created: the encumbered logical-outgoing
// queue resolves into a pending-outgoing amount plus change staying at
// rest, and the reserved spending fee moves from encumbered to pending.
type BatchCreatedParams struct {
	Summary WalletTransactionSummary
}

// SpendDetectedParams posts spend_detected: the transaction has broadcast
// but not confirmed. WithdrawFromLogicalWhenSettled defers the logical
// debit for any input that was not yet confirmed at broadcast time,
// keyed by that input's outpoint, resolved by the matching
// spend_settled call.
type SpendDetectedParams struct {
	Summary                       WalletTransactionSummary
	ReservedFees                  money.Satoshis
	WithdrawFromLogicalWhenSettled map[primitives.OutPoint]money.Satoshis
	EncumberedSpendingFeeSats     money.Satoshis
}

// SpendSettledParams posts spend_settled: the broadcast transaction has
// confirmed. PendingId names the spend_detected transaction being
// finalized; any deferred logical debits it recorded resolve now.
type SpendSettledParams struct {
	PendingId        primitives.LedgerTransactionId
	ConfirmationTime time.Time
	ChangeSpent      bool
}
