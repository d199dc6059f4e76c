package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

func sumEntries(entries []templates.Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

// amountFor sums every entry posted against account at layer, so tests
// can assert a builder derived the right business figure and not just
// that CheckEntries happens to balance (balanceWithExternal would mask a
// wrong real leg by silently absorbing it into External).
func amountFor(entries []templates.Entry, account templates.Suffix, layer templates.Layer) int64 {
	var total int64
	for _, e := range entries {
		if e.Account == account && e.Layer == layer {
			total += e.Amount
		}
	}
	return total
}

func TestBuildUTXODetectedEntriesBalance(t *testing.T) {
	entries := buildUTXODetectedEntries(UTXODetectedParams{
		Satoshis:                  money.NewSatoshis(50_000),
		EncumberedSpendingFeeSats: money.NewSatoshis(500),
	})
	assert.Equal(t, int64(0), sumEntries(entries))

	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.UTXODetected)
	require.True(t, ok)
	assert.NoError(t, templates.CheckEntries(tmpl, entries))
}

func TestBuildUTXOSettledEntriesBalance(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.UTXOSettled)
	require.True(t, ok)

	notSpent := buildUTXOSettledEntries(UTXOSettledParams{Satoshis: money.NewSatoshis(50_000)})
	assert.Equal(t, int64(0), sumEntries(notSpent))
	assert.NoError(t, templates.CheckEntries(tmpl, notSpent))
	assert.Len(t, notSpent, 4)
	assert.Equal(t, int64(50_000), amountFor(notSpent, templates.OnchainAtRest, templates.LayerSettled))
	assert.Equal(t, int64(0), amountFor(notSpent, templates.OnchainOutgoing, templates.LayerPending))

	alreadySpent := primitives.NewLedgerTransactionId()
	redirected := buildUTXOSettledEntries(UTXOSettledParams{
		Satoshis:         money.NewSatoshis(50_000),
		AlreadySpentTxId: &alreadySpent,
	})
	assert.Equal(t, int64(0), sumEntries(redirected))
	assert.NoError(t, templates.CheckEntries(tmpl, redirected))
	assert.Len(t, redirected, 4, "logical legs are unaffected; only the on-chain leg is redirected")
	assert.Equal(t, int64(0), amountFor(redirected, templates.OnchainAtRest, templates.LayerSettled),
		"settled_utxos must stay zero once the output was already claimed by a detected spend")
	assert.Equal(t, int64(50_000), amountFor(redirected, templates.OnchainOutgoing, templates.LayerPending))
	assert.Equal(t, int64(50_000), amountFor(redirected, templates.LogicalAtRest, templates.LayerSettled))
}

func TestBuildPayoutQueuedEntriesBalance(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.PayoutQueued)
	require.True(t, ok)

	entries := buildPayoutQueuedEntries(PayoutQueuedParams{Satoshis: money.NewSatoshis(25_000)})
	assert.Equal(t, int64(0), sumEntries(entries))
	assert.NoError(t, templates.CheckEntries(tmpl, entries))
}

// TestBuildBatchCreatedEntriesBalance mirrors spec.md §8 scenario 4:
// total_utxo_in=2btc, fee=2346, spent=1btc, change=1btc-2346,
// encumbered_fees=12346.
func TestBuildBatchCreatedEntriesBalance(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.BatchCreated)
	require.True(t, ok)

	const btc = 100_000_000
	const fee = 2_346
	const change = btc - fee // 1 btc - 2346

	summary := WalletTransactionSummary{
		TotalUtxoIn:            money.NewSatoshis(2 * btc),
		TotalUtxoSettled:       money.NewSatoshis(2 * btc),
		ChangeSats:             money.NewSatoshis(change),
		FeeSats:                money.NewSatoshis(fee),
		EncumberedFeesReleased: money.NewSatoshis(12_346),
	}
	entries := buildBatchCreatedEntries(summary)
	assert.Equal(t, int64(0), sumEntries(entries))
	assert.NoError(t, templates.CheckEntries(tmpl, entries))

	assert.Equal(t, int64(btc), amountFor(entries, templates.LogicalOutgoing, templates.LayerPending),
		"spent amount (total - change - fee) must resolve into pending outgoing")
	assert.Equal(t, int64(-(btc + fee)), amountFor(entries, templates.LogicalAtRest, templates.LayerSettled))
	assert.Equal(t, int64(-btc), amountFor(entries, templates.LogicalOutgoing, templates.LayerEncumbered))
	assert.Equal(t, int64(-12_346), amountFor(entries, templates.Fee, templates.LayerEncumbered))
	assert.Equal(t, int64(fee), amountFor(entries, templates.Fee, templates.LayerPending))
	assert.Equal(t, int64(change), amountFor(entries, templates.OnchainIncoming, templates.LayerEncumbered),
		"encumbered_incoming_utxos must equal the anticipated change")
	assert.Equal(t, int64(-2*btc), amountFor(entries, templates.OnchainAtRest, templates.LayerSettled))
	assert.Equal(t, int64(2*btc-fee), amountFor(entries, templates.OnchainOutgoing, templates.LayerPending))
}

// TestBuildSpendDetectedEntriesBalance mirrors spec.md §8 scenario 5
// (spend detected then settled, confirmed inputs): total_in=total_settled
// =2btc, fee=2346, change=0.4btc, reserved=12346, encumbered_spending_fee=1.
func TestBuildSpendDetectedEntriesBalance(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.SpendDetected)
	require.True(t, ok)

	const btc = 100_000_000
	const change = btc * 2 / 5 // 0.4 btc

	params := SpendDetectedParams{
		Summary: WalletTransactionSummary{
			TotalUtxoIn:      money.NewSatoshis(2 * btc),
			TotalUtxoSettled: money.NewSatoshis(2 * btc),
			ChangeSats:       money.NewSatoshis(change),
			FeeSats:          money.NewSatoshis(2_346),
		},
		ReservedFees:              money.NewSatoshis(12_346),
		EncumberedSpendingFeeSats: money.NewSatoshis(1),
	}
	entries := buildSpendDetectedEntries(params)
	assert.Equal(t, int64(0), sumEntries(entries))
	assert.NoError(t, templates.CheckEntries(tmpl, entries))

	assert.Equal(t, int64(2*btc-2_346-change), amountFor(entries, templates.LogicalOutgoing, templates.LayerPending),
		"logical_pending_outgoing must be net of fee, per spec.md §8 scenario 5")
	assert.Equal(t, int64(-(2*btc - change)), amountFor(entries, templates.LogicalAtRest, templates.LayerSettled))
	assert.Equal(t, int64(-12_345), amountFor(entries, templates.Fee, templates.LayerEncumbered))
	assert.Equal(t, int64(2_346), amountFor(entries, templates.Fee, templates.LayerPending))
}

// TestBuildSpendDetectedEntriesBalanceWithDeferral mirrors spec.md §8
// scenario 6 (deferred withdrawal on an unconfirmed input):
// total_settled=1btc, total_in=2btc, withdraw_from_logical_when_settled
// defers 50_000 sats.
func TestBuildSpendDetectedEntriesBalanceWithDeferral(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.SpendDetected)
	require.True(t, ok)

	const btc = 100_000_000
	op, err := primitives.NewOutPoint("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33", 0)
	require.NoError(t, err)
	change := int64(btc * 2 / 5)

	entries := buildSpendDetectedEntries(SpendDetectedParams{
		Summary: WalletTransactionSummary{
			TotalUtxoIn:      money.NewSatoshis(2 * btc),
			TotalUtxoSettled: money.NewSatoshis(btc),
			ChangeSats:       money.NewSatoshis(change),
			FeeSats:          money.NewSatoshis(2_346),
		},
		ReservedFees:              money.NewSatoshis(12_346),
		EncumberedSpendingFeeSats: money.NewSatoshis(1),
		WithdrawFromLogicalWhenSettled: map[primitives.OutPoint]money.Satoshis{
			op: money.NewSatoshis(50_000),
		},
	})
	assert.Equal(t, int64(0), sumEntries(entries))
	assert.NoError(t, templates.CheckEntries(tmpl, entries))

	assert.Equal(t, int64(-btc), amountFor(entries, templates.OnchainAtRest, templates.LayerSettled))
	assert.Equal(t, -(2*int64(btc) - change - 50_000), amountFor(entries, templates.LogicalAtRest, templates.LayerSettled))
	assert.Equal(t, int64(-50_000), amountFor(entries, templates.LogicalIncoming, templates.LayerPending))
}

func TestBuildSpendSettledEntriesBalance(t *testing.T) {
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Lookup(templates.SpendSettled)
	require.True(t, ok)

	entries := buildSpendSettledEntries(money.NewSatoshis(20_000))
	assert.Equal(t, int64(0), sumEntries(entries))
	assert.NoError(t, templates.CheckEntries(tmpl, entries))
}

func TestWalletAccountsByName(t *testing.T) {
	wa := WalletAccounts{
		OnchainIncoming:    primitives.NewLedgerAccountId(),
		OnchainAtRest:      primitives.NewLedgerAccountId(),
		OnchainOutgoing:    primitives.NewLedgerAccountId(),
		LogicalIncoming:    primitives.NewLedgerAccountId(),
		LogicalAtRest:      primitives.NewLedgerAccountId(),
		LogicalOutgoing:    primitives.NewLedgerAccountId(),
		Fee:                primitives.NewLedgerAccountId(),
		externalAccountId:  primitives.NewLedgerAccountId(),
	}

	assert.Equal(t, wa.OnchainIncoming, wa.byName(templates.OnchainIncoming))
	assert.Equal(t, wa.Fee, wa.byName(templates.Fee))
	assert.Equal(t, wa.externalAccountId, wa.byName(templates.External))
}

func TestWalletAccountsByNameUnknownSuffixPanics(t *testing.T) {
	wa := WalletAccounts{}
	assert.Panics(t, func() {
		wa.byName(templates.Suffix("bogus"))
	})
}
