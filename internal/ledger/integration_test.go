package ledger_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/custody-ledger/internal/config"
	"github.com/klingon-exchange/custody-ledger/internal/ledger"
	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
	"github.com/klingon-exchange/custody-ledger/internal/store"
	"github.com/klingon-exchange/custody-ledger/internal/utxo"
)

// requireTestDB opens a Store against TEST_DATABASE_URL, skipping the
// test entirely if it isn't set, the way the teacher's own htlc client
// integration tests skip without a live Anvil node.
func requireTestDB(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	s, err := store.Open(config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUTXODetectedThenSettledRoundTrip(t *testing.T) {
	db := requireTestDB(t)
	ctx := context.Background()

	registry, err := templates.NewRegistry()
	require.NoError(t, err)
	engine := ledger.NewEngine(registry)
	repo := utxo.New(db.DB())

	accountId := primitives.NewAccountId()
	walletId := primitives.NewWalletId()
	keychainId := primitives.NewKeychainId()

	op, err := primitives.NewOutPoint("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33", 0)
	require.NoError(t, err)

	pendingIncome := primitives.NewLedgerTransactionId()
	persisted, tx, err := repo.PersistUTXO(ctx, utxo.NewUTXO{
		KeychainId:              keychainId,
		OutPoint:                op,
		WalletId:                walletId,
		Kind:                    primitives.KeychainExternal,
		Address:                 "bc1qexampleaddress",
		ScriptHex:               "0014deadbeef",
		Value:                   money.NewSatoshis(50_000),
		SatsPerVByte:            12.5,
		PendingIncomeLedgerTxId: pendingIncome,
	})
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.NotNil(t, tx)

	wa, err := engine.WalletAccountsFor(ctx, tx, accountId, walletId)
	require.NoError(t, err)

	err = engine.UTXODetected(ctx, tx, wa, pendingIncome, ledger.UTXODetectedMeta{
		KeychainId: keychainId,
		OutPoint:   op,
		Satoshis:   money.NewSatoshis(50_000),
	}, ledger.UTXODetectedParams{
		Satoshis:                  money.NewSatoshis(50_000),
		EncumberedSpendingFeeSats: money.NewSatoshis(500),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	balances, err := ledger.GetWalletLedgerAccountBalances(ctx, db.DB(), wa)
	require.NoError(t, err)
	require.Equal(t, money.NewSatoshis(50_000), balances[templates.OnchainIncoming].Pending)
	require.Equal(t, money.NewSatoshis(50_000), balances[templates.LogicalIncoming].Pending)
	require.Equal(t, money.NewSatoshis(500), balances[templates.Fee].Encumbered)

	// Duplicate detection of the same output must be a no-op.
	dup, dupTx, err := repo.PersistUTXO(ctx, utxo.NewUTXO{
		KeychainId:              keychainId,
		OutPoint:                op,
		WalletId:                walletId,
		Kind:                    primitives.KeychainExternal,
		Address:                 "bc1qexampleaddress",
		ScriptHex:               "0014deadbeef",
		Value:                   money.NewSatoshis(50_000),
		SatsPerVByte:            12.5,
		PendingIncomeLedgerTxId: primitives.NewLedgerTransactionId(),
	})
	require.NoError(t, err)
	require.Nil(t, dup)
	require.Nil(t, dupTx)

	confirmTx, err := db.Begin(ctx)
	require.NoError(t, err)
	confirmedIncome := primitives.NewLedgerTransactionId()
	confirmed, err := repo.MarkUTXOConfirmed(ctx, confirmTx, keychainId, op, false, 800, confirmedIncome)
	require.NoError(t, err)
	require.Equal(t, pendingIncome, confirmed.PriorPendingIncomeLedgerTxId)

	err = engine.UTXOSettled(ctx, confirmTx, wa, confirmedIncome, ledger.UTXOSettledMeta{
		KeychainId: keychainId,
		OutPoint:   op,
		Satoshis:   money.NewSatoshis(50_000),
	}, ledger.UTXOSettledParams{Satoshis: money.NewSatoshis(50_000)})
	require.NoError(t, err)
	require.NoError(t, confirmTx.Commit())

	balances, err = ledger.GetWalletLedgerAccountBalances(ctx, db.DB(), wa)
	require.NoError(t, err)
	require.Equal(t, money.Zero, balances[templates.OnchainIncoming].Pending)
	require.Equal(t, money.NewSatoshis(50_000), balances[templates.OnchainAtRest].Settled)
	require.Equal(t, money.Zero, balances[templates.LogicalIncoming].Pending)
	require.Equal(t, money.NewSatoshis(50_000), balances[templates.LogicalAtRest].Settled)
}

func TestReserveUTXOsInBatchConflict(t *testing.T) {
	db := requireTestDB(t)
	ctx := context.Background()
	repo := utxo.New(db.DB())

	keychainId := primitives.NewKeychainId()
	walletId := primitives.NewWalletId()
	op, err := primitives.NewOutPoint("5b6f2f5cbbc90a4b43629b99d42cd98f729f87784f3dd88bc3238c8bf0eed44", 0)
	require.NoError(t, err)

	_, tx, err := repo.PersistUTXO(ctx, utxo.NewUTXO{
		KeychainId:              keychainId,
		OutPoint:                op,
		WalletId:                walletId,
		Kind:                    primitives.KeychainExternal,
		Address:                 "bc1qanother",
		ScriptHex:               "0014cafef00d",
		Value:                   money.NewSatoshis(10_000),
		SatsPerVByte:            5,
		PendingIncomeLedgerTxId: primitives.NewLedgerTransactionId(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	firstBatch := primitives.NewBatchId()
	reserveTx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.ReserveUTXOsInBatch(ctx, reserveTx, firstBatch, []utxo.OutPointRef{
		{KeychainId: keychainId, OutPoint: op},
	}))
	require.NoError(t, reserveTx.Commit())

	secondBatch := primitives.NewBatchId()
	conflictTx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer conflictTx.Rollback()

	err = repo.ReserveUTXOsInBatch(ctx, conflictTx, secondBatch, []utxo.OutPointRef{
		{KeychainId: keychainId, OutPoint: op},
	})
	require.Error(t, err)
}
