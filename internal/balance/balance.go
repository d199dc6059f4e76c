// Package balance projects a wallet's seven raw ledger sub-accounts,
// each carrying an independent settled/pending/encumbered balance, into
// the user-facing WalletBalanceSummary. It is a pure function: no I/O,
// no state, grounded on spec.md §4.4's field list.
package balance

import (
	"github.com/klingon-exchange/custody-ledger/internal/ledger"
	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/money"
)

// WalletBalanceSummary is the user-visible projection of a wallet's
// ledger accounts. Every field is signed satoshis.
type WalletBalanceSummary struct {
	PendingIncomingUtxos      money.Satoshis
	SettledUtxos              money.Satoshis
	PendingOutgoingUtxos      money.Satoshis
	EncumberedIncomingUtxos   money.Satoshis
	LogicalPendingIncome      money.Satoshis
	LogicalSettled            money.Satoshis
	LogicalPendingOutgoing    money.Satoshis
	LogicalEncumberedOutgoing money.Satoshis
	EncumberedFees            money.Satoshis
	PendingFees               money.Satoshis
}

// FromAccountBalances derives a WalletBalanceSummary from the per-layer
// sub-account balances returned by ledger.GetWalletLedgerAccountBalances.
//
// Each of the ten summary fields reads a distinct (account, layer) pair,
// so — unlike a single net balance per account — two fields that happen
// to share an account (logical_outgoing's pending vs. encumbered amount,
// fee's pending vs. encumbered amount, onchain_incoming's pending vs.
// encumbered amount) can carry simultaneously different, even
// oppositely-signed, values, per spec.md §4.4 and scenario §8.4.
func FromAccountBalances(balances map[templates.Suffix]ledger.LayerBalances) WalletBalanceSummary {
	return WalletBalanceSummary{
		PendingIncomingUtxos:      balances[templates.OnchainIncoming].Pending,
		SettledUtxos:              balances[templates.OnchainAtRest].Settled,
		PendingOutgoingUtxos:      balances[templates.OnchainOutgoing].Pending,
		EncumberedIncomingUtxos:   balances[templates.OnchainIncoming].Encumbered,
		LogicalPendingIncome:      balances[templates.LogicalIncoming].Pending,
		LogicalSettled:            balances[templates.LogicalAtRest].Settled,
		LogicalPendingOutgoing:    balances[templates.LogicalOutgoing].Pending,
		LogicalEncumberedOutgoing: balances[templates.LogicalOutgoing].Encumbered,
		EncumberedFees:            balances[templates.Fee].Encumbered,
		PendingFees:               balances[templates.Fee].Pending,
	}
}
