package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klingon-exchange/custody-ledger/internal/ledger"
	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/money"
)

func TestFromAccountBalances(t *testing.T) {
	raw := map[templates.Suffix]ledger.LayerBalances{
		templates.OnchainIncoming: {Pending: money.NewSatoshis(100), Encumbered: money.NewSatoshis(150)},
		templates.OnchainAtRest:   {Settled: money.NewSatoshis(200)},
		templates.OnchainOutgoing: {Pending: money.NewSatoshis(300)},
		templates.LogicalIncoming: {Pending: money.NewSatoshis(400)},
		templates.LogicalAtRest:   {Settled: money.NewSatoshis(500)},
		templates.LogicalOutgoing: {Pending: money.NewSatoshis(600), Encumbered: money.NewSatoshis(-600)},
		templates.Fee:             {Pending: money.NewSatoshis(2_346), Encumbered: money.NewSatoshis(-12_346)},
	}

	summary := FromAccountBalances(raw)

	assert.Equal(t, money.NewSatoshis(100), summary.PendingIncomingUtxos)
	assert.Equal(t, money.NewSatoshis(150), summary.EncumberedIncomingUtxos)
	assert.Equal(t, money.NewSatoshis(200), summary.SettledUtxos)
	assert.Equal(t, money.NewSatoshis(300), summary.PendingOutgoingUtxos)
	assert.Equal(t, money.NewSatoshis(400), summary.LogicalPendingIncome)
	assert.Equal(t, money.NewSatoshis(500), summary.LogicalSettled)

	// A single sub-account's pending and encumbered layers diverge at
	// once, which a single net balance column could never represent.
	assert.Equal(t, money.NewSatoshis(600), summary.LogicalPendingOutgoing)
	assert.Equal(t, money.NewSatoshis(-600), summary.LogicalEncumberedOutgoing)
	assert.Equal(t, money.NewSatoshis(2_346), summary.PendingFees)
	assert.Equal(t, money.NewSatoshis(-12_346), summary.EncumberedFees)
}

func TestFromAccountBalancesMissingAccountsDefaultToZero(t *testing.T) {
	summary := FromAccountBalances(map[templates.Suffix]ledger.LayerBalances{})
	assert.Equal(t, money.Zero, summary.PendingIncomingUtxos)
	assert.Equal(t, money.Zero, summary.SettledUtxos)
	assert.Equal(t, money.Zero, summary.EncumberedFees)
}
