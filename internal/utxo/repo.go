package utxo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/klingon-exchange/custody-ledger/internal/ledgercore"
	"github.com/klingon-exchange/custody-ledger/internal/logging"
	"github.com/klingon-exchange/custody-ledger/internal/metrics"
	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting read views
// run against either a pool connection or an in-flight transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the subset of *sql.DB the repository needs to start transactions
// and run its one self-contained operation, PersistUTXO.
type DB interface {
	Queryer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Repo is a stateless façade over the bria_utxos table. It owns no
// in-memory state beyond its database handle, the same way the teacher's
// Storage holds only a connection pool.
type Repo struct {
	db  DB
	log *logging.Logger
}

// New constructs a Repo over db.
func New(db DB) *Repo {
	return &Repo{db: db, log: logging.GetDefault().Component("utxorepo")}
}

// PersistUTXO inserts a freshly observed output. If the row is new, it
// returns the pending income ledger id bundled with the open transaction
// the caller must use to post utxo_detected before committing. If the
// row already existed (ON CONFLICT DO NOTHING matched), the detection is
// a duplicate: no ledger work is owed, and (nil, nil, nil) is returned
// after the transaction is rolled back.
func (r *Repo) PersistUTXO(ctx context.Context, nu NewUTXO) (*PersistedUTXO, *sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, ledgercore.WrapDatabase("utxo.PersistUTXO: begin", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bria_utxos (
			keychain_id, tx_id, vout, wallet_id, kind, address_idx, address,
			script_hex, value_sats, sats_per_vbyte_when_created, self_pay,
			pending_income_ledger_tx_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (keychain_id, tx_id, vout) DO NOTHING
	`,
		nu.KeychainId.String(), nu.OutPoint.TxID.String(), nu.OutPoint.Vout,
		nu.WalletId.String(), nu.Kind.String(), nu.AddressIdx, nu.Address,
		nu.ScriptHex, nu.Value.Int64(), nu.SatsPerVByte, nu.SelfPay,
		nu.PendingIncomeLedgerTxId.String(),
	)
	if err != nil {
		tx.Rollback()
		return nil, nil, ledgercore.WrapDatabase("utxo.PersistUTXO: insert", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, nil, ledgercore.WrapDatabase("utxo.PersistUTXO: rows affected", err)
	}

	if n == 0 {
		// Duplicate detection: nothing to post, nothing to keep open.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.log.Warn("rollback on duplicate persist failed", "err", err)
		}
		return nil, nil, nil
	}

	metrics.UTXOTransitionsTotal.WithLabelValues("persist").Inc()
	return &PersistedUTXO{PendingIncomeLedgerTxId: nu.PendingIncomeLedgerTxId}, tx, nil
}

// MarkUTXOConfirmed stamps a freshly generated confirmed-income ledger
// transaction id onto an existing row and records its block height and
// observed-spent flag. It fails with ErrRowNotFound if the row is absent.
func (r *Repo) MarkUTXOConfirmed(
	ctx context.Context, tx *sql.Tx,
	keychain primitives.KeychainId, op primitives.OutPoint,
	bdkSpent bool, height uint32,
	confirmedIncomeLedgerTxId primitives.LedgerTransactionId,
) (*ConfirmedUTXO, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE bria_utxos
		SET block_height = $1, bdk_spent = $2,
		    confirmed_income_ledger_tx_id = $3, modified_at = now()
		WHERE keychain_id = $4 AND tx_id = $5 AND vout = $6
		RETURNING pending_income_ledger_tx_id, value_sats, address, pending_spend_ledger_tx_id
	`, height, bdkSpent, confirmedIncomeLedgerTxId.String(),
		keychain.String(), op.TxID.String(), op.Vout)

	var priorPending string
	var value int64
	var address string
	var priorSpend sql.NullString

	if err := row.Scan(&priorPending, &value, &address, &priorSpend); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("utxo.MarkUTXOConfirmed %s: %w", op, ledgercore.ErrRowNotFound)
		}
		return nil, ledgercore.WrapDatabase("utxo.MarkUTXOConfirmed", err)
	}

	priorPendingId, err := primitives.ParseLedgerTransactionId(priorPending)
	if err != nil {
		return nil, fmt.Errorf("utxo.MarkUTXOConfirmed: parse prior pending id: %w", err)
	}

	out := &ConfirmedUTXO{
		PriorPendingIncomeLedgerTxId: priorPendingId,
		Value:                        money.NewSatoshis(value),
		Address:                      address,
	}
	if priorSpend.Valid {
		id, err := primitives.ParseLedgerTransactionId(priorSpend.String)
		if err != nil {
			return nil, fmt.Errorf("utxo.MarkUTXOConfirmed: parse prior spend id: %w", err)
		}
		out.PriorPendingSpendLedgerTxId = &id
	}

	metrics.UTXOTransitionsTotal.WithLabelValues("confirm").Inc()
	return out, nil
}

// FindReservableUTXOs row-locks every matching, reservable row (bdk_spent
// = false AND spending_batch_id IS NULL) across the given keychains. The
// lock is held until the caller commits or rolls back tx.
func (r *Repo) FindReservableUTXOs(
	ctx context.Context, tx *sql.Tx, keychainIds []primitives.KeychainId,
) ([]ReservableUTXO, error) {
	if len(keychainIds) == 0 {
		return nil, nil
	}

	clause, args := inClause("keychain_id", 1, idStrings(keychainIds))
	query := fmt.Sprintf(`
		SELECT keychain_id, address, tx_id, vout, value_sats, spending_batch_id, confirmed_income_ledger_tx_id
		FROM bria_utxos
		WHERE %s AND bdk_spent = false AND spending_batch_id IS NULL
		FOR UPDATE
	`, clause)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledgercore.WrapDatabase("utxo.FindReservableUTXOs", err)
	}
	defer rows.Close()

	var out []ReservableUTXO
	for rows.Next() {
		var keychainStr, address, txid string
		var vout uint32
		var value int64
		var batchID, confirmedIncome sql.NullString

		if err := rows.Scan(&keychainStr, &address, &txid, &vout, &value, &batchID, &confirmedIncome); err != nil {
			return nil, ledgercore.WrapDatabase("utxo.FindReservableUTXOs: scan", err)
		}

		keychainId, err := primitives.ParseKeychainId(keychainStr)
		if err != nil {
			return nil, err
		}
		op, err := primitives.NewOutPoint(txid, vout)
		if err != nil {
			return nil, err
		}

		ru := ReservableUTXO{
			KeychainId:    keychainId,
			IncomeAddress: address,
			OutPoint:      op,
			Value:         money.NewSatoshis(value),
		}
		if batchID.Valid {
			b, err := primitives.ParseBatchId(batchID.String)
			if err != nil {
				return nil, err
			}
			ru.SpendingBatchId = &b
		}
		if confirmedIncome.Valid {
			c, err := primitives.ParseLedgerTransactionId(confirmedIncome.String)
			if err != nil {
				return nil, err
			}
			ru.ConfirmedIncomeLedgerTxId = &c
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}

// ReserveUTXOsInBatch sets spending_batch_id for every listed UTXO. It is
// a no-op for rows already reserved to the same batch. A row reserved to
// a different batch is rejected with ErrConflictingReservation, per
// spec.md §9's recommendation for the implementation-defined case.
func (r *Repo) ReserveUTXOsInBatch(ctx context.Context, tx *sql.Tx, batchId primitives.BatchId, utxos []OutPointRef) error {
	for _, u := range utxos {
		res, err := tx.ExecContext(ctx, `
			UPDATE bria_utxos SET spending_batch_id = $1, modified_at = now()
			WHERE keychain_id = $2 AND tx_id = $3 AND vout = $4
			  AND (spending_batch_id IS NULL OR spending_batch_id = $1)
		`, batchId.String(), u.KeychainId.String(), u.OutPoint.TxID.String(), u.OutPoint.Vout)
		if err != nil {
			return ledgercore.WrapDatabase("utxo.ReserveUTXOsInBatch", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledgercore.WrapDatabase("utxo.ReserveUTXOsInBatch: rows affected", err)
		}
		if n == 0 {
			var existing sql.NullString
			err := tx.QueryRowContext(ctx, `
				SELECT spending_batch_id FROM bria_utxos
				WHERE keychain_id = $1 AND tx_id = $2 AND vout = $3
			`, u.KeychainId.String(), u.OutPoint.TxID.String(), u.OutPoint.Vout).Scan(&existing)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("utxo.ReserveUTXOsInBatch %s: %w", u.OutPoint, ledgercore.ErrRowNotFound)
				}
				return ledgercore.WrapDatabase("utxo.ReserveUTXOsInBatch: lookup", err)
			}
			return fmt.Errorf("utxo.ReserveUTXOsInBatch %s: already reserved to batch %s: %w",
				u.OutPoint, existing.String, ledgercore.ErrConflictingReservation)
		}
		metrics.UTXOTransitionsTotal.WithLabelValues("reserve").Inc()
	}
	return nil
}

// MarkSpent conditionally claims every listed UTXO for pendingSpendId,
// only where pending_spend_ledger_tx_id is currently NULL. If fewer rows
// were touched than requested, another worker already claimed at least
// one: the caller must treat this as ErrAlreadyTerminal and abort,
// rolling back without posting anything. On full success, rows come back
// ordered settled-before-unconfirmed, then by (value DESC, fee density
// DESC) for deterministic change accounting.
func (r *Repo) MarkSpent(
	ctx context.Context, tx *sql.Tx, keychain primitives.KeychainId,
	utxos []primitives.OutPoint, pendingSpendId primitives.LedgerTransactionId,
) ([]SpentUTXO, error) {
	if len(utxos) == 0 {
		return nil, nil
	}

	claimed := 0
	for _, op := range utxos {
		res, err := tx.ExecContext(ctx, `
			UPDATE bria_utxos SET pending_spend_ledger_tx_id = $1, modified_at = now()
			WHERE keychain_id = $2 AND tx_id = $3 AND vout = $4
			  AND pending_spend_ledger_tx_id IS NULL
		`, pendingSpendId.String(), keychain.String(), op.TxID.String(), op.Vout)
		if err != nil {
			return nil, ledgercore.WrapDatabase("utxo.MarkSpent", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, ledgercore.WrapDatabase("utxo.MarkSpent: rows affected", err)
		}
		claimed += int(n)
	}

	if claimed < len(utxos) {
		// Already claimed by another worker: success-by-concurrency.
		return nil, nil
	}

	clause, args := outpointsInClause(keychain, utxos, 1)
	query := fmt.Sprintf(`
		SELECT tx_id, vout, value_sats, sats_per_vbyte_when_created, block_height IS NOT NULL
		FROM bria_utxos
		WHERE %s
		ORDER BY (block_height IS NOT NULL) DESC, value_sats DESC, sats_per_vbyte_when_created DESC
	`, clause)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledgercore.WrapDatabase("utxo.MarkSpent: reselect", err)
	}
	defer rows.Close()

	var out []SpentUTXO
	for rows.Next() {
		var txid string
		var vout uint32
		var value int64
		var satsPerVByte float64
		var confirmed bool
		if err := rows.Scan(&txid, &vout, &value, &satsPerVByte, &confirmed); err != nil {
			return nil, ledgercore.WrapDatabase("utxo.MarkSpent: scan", err)
		}
		op, err := primitives.NewOutPoint(txid, vout)
		if err != nil {
			return nil, err
		}
		out = append(out, SpentUTXO{
			KeychainId:   keychain,
			OutPoint:     op,
			Value:        money.NewSatoshis(value),
			SatsPerVByte: satsPerVByte,
			Confirmed:    confirmed,
		})
	}
	metrics.UTXOTransitionsTotal.WithLabelValues("mark_spent").Add(float64(len(out)))
	return out, rows.Err()
}

// ConfirmSpend conditionally stamps confirmedSpendId onto every listed
// UTXO where confirmed_spend_ledger_tx_id is currently NULL, returning the
// common prior pending_spend_ledger_tx_id on full success. If the set was
// only partially claimed, returns (nil, nil): treat as already-terminal.
func (r *Repo) ConfirmSpend(
	ctx context.Context, tx *sql.Tx, keychain primitives.KeychainId,
	utxos []primitives.OutPoint, confirmedSpendId primitives.LedgerTransactionId,
) (*primitives.LedgerTransactionId, error) {
	if len(utxos) == 0 {
		return nil, nil
	}

	var priorPending *primitives.LedgerTransactionId
	claimed := 0
	for _, op := range utxos {
		row := tx.QueryRowContext(ctx, `
			UPDATE bria_utxos SET confirmed_spend_ledger_tx_id = $1, modified_at = now()
			WHERE keychain_id = $2 AND tx_id = $3 AND vout = $4
			  AND confirmed_spend_ledger_tx_id IS NULL
			RETURNING pending_spend_ledger_tx_id
		`, confirmedSpendId.String(), keychain.String(), op.TxID.String(), op.Vout)

		var pending sql.NullString
		if err := row.Scan(&pending); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, ledgercore.WrapDatabase("utxo.ConfirmSpend", err)
		}
		claimed++
		if pending.Valid && priorPending == nil {
			id, err := primitives.ParseLedgerTransactionId(pending.String)
			if err != nil {
				return nil, err
			}
			priorPending = &id
		}
	}

	if claimed < len(utxos) {
		return nil, nil
	}
	metrics.UTXOTransitionsTotal.WithLabelValues("confirm_spend").Add(float64(claimed))
	return priorPending, nil
}

// FindKeychainUTXOs returns every row for a keychain, regardless of state.
func (r *Repo) FindKeychainUTXOs(ctx context.Context, q Queryer, keychain primitives.KeychainId) ([]UTXO, error) {
	rows, err := q.QueryContext(ctx, selectColumns+` FROM bria_utxos WHERE keychain_id = $1`, keychain.String())
	if err != nil {
		return nil, ledgercore.WrapDatabase("utxo.FindKeychainUTXOs", err)
	}
	defer rows.Close()
	return scanUTXOs(rows)
}

// ListUTXOsByOutpoint returns every row matching an outpoint across
// keychains, ordered (block_height ASC NULLS LAST, fee density DESC).
func (r *Repo) ListUTXOsByOutpoint(ctx context.Context, q Queryer, op primitives.OutPoint) ([]UTXO, error) {
	rows, err := q.QueryContext(ctx, selectColumns+`
		FROM bria_utxos WHERE tx_id = $1 AND vout = $2
		ORDER BY block_height ASC NULLS LAST, sats_per_vbyte_when_created DESC
	`, op.TxID.String(), op.Vout)
	if err != nil {
		return nil, ledgercore.WrapDatabase("utxo.ListUTXOsByOutpoint", err)
	}
	defer rows.Close()
	return scanUTXOs(rows)
}

const selectColumns = `
	SELECT keychain_id, tx_id, vout, wallet_id, kind, address_idx, address, script_hex,
	       value_sats, sats_per_vbyte_when_created, self_pay, bdk_spent, block_height,
	       spending_batch_id, pending_income_ledger_tx_id, confirmed_income_ledger_tx_id,
	       pending_spend_ledger_tx_id, confirmed_spend_ledger_tx_id, created_at, modified_at
`

func scanUTXOs(rows *sql.Rows) ([]UTXO, error) {
	var out []UTXO
	for rows.Next() {
		var u UTXO
		var keychainStr, txid, walletStr, kindStr string
		var blockHeight sql.NullInt64
		var batchID, confirmedIncome, pendingSpend, confirmedSpend sql.NullString

		err := rows.Scan(
			&keychainStr, &txid, &u.OutPoint.Vout, &walletStr, &kindStr, &u.AddressIdx, &u.Address,
			&u.ScriptHex, (*int64)(&u.Value), &u.SatsPerVByte, &u.SelfPay, &u.BdkSpent, &blockHeight,
			&batchID, &u.PendingIncomeLedgerTxId.UUID, &confirmedIncome,
			&pendingSpend, &confirmedSpend, &u.CreatedAt, &u.ModifiedAt,
		)
		if err != nil {
			return nil, ledgercore.WrapDatabase("utxo.scanUTXOs", err)
		}

		u.KeychainId, err = primitives.ParseKeychainId(keychainStr)
		if err != nil {
			return nil, err
		}
		u.WalletId, err = primitives.ParseWalletId(walletStr)
		if err != nil {
			return nil, err
		}
		u.Kind, err = primitives.ParseKeychainKind(kindStr)
		if err != nil {
			return nil, err
		}
		h, err := primitives.NewOutPoint(txid, u.OutPoint.Vout)
		if err != nil {
			return nil, err
		}
		u.OutPoint = h

		if blockHeight.Valid {
			v := uint32(blockHeight.Int64)
			u.BlockHeight = &v
		}
		if batchID.Valid {
			b, err := primitives.ParseBatchId(batchID.String)
			if err != nil {
				return nil, err
			}
			u.SpendingBatchId = &b
		}
		if confirmedIncome.Valid {
			c, err := primitives.ParseLedgerTransactionId(confirmedIncome.String)
			if err != nil {
				return nil, err
			}
			u.ConfirmedIncomeLedgerTxId = &c
		}
		if pendingSpend.Valid {
			c, err := primitives.ParseLedgerTransactionId(pendingSpend.String)
			if err != nil {
				return nil, err
			}
			u.PendingSpendLedgerTxId = &c
		}
		if confirmedSpend.Valid {
			c, err := primitives.ParseLedgerTransactionId(confirmedSpend.String)
			if err != nil {
				return nil, err
			}
			u.ConfirmedSpendLedgerTxId = &c
		}

		out = append(out, u)
	}
	return out, rows.Err()
}

func idStrings[T fmt.Stringer](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// inClause builds a "col IN ($n, $n+1, ...)" fragment starting at
// placeholder index start, returning the fragment and its arguments.
func inClause(col string, start int, values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args
}

// outpointsInClause builds a "keychain_id = $1 AND (tx_id, vout) IN (...)"
// fragment for a fixed keychain and a list of outpoints.
func outpointsInClause(keychain primitives.KeychainId, ops []primitives.OutPoint, start int) (string, []interface{}) {
	args := []interface{}{keychain.String()}
	pairs := make([]string, len(ops))
	idx := start + 1
	for i, op := range ops {
		pairs[i] = fmt.Sprintf("($%d, $%d)", idx, idx+1)
		args = append(args, op.TxID.String(), op.Vout)
		idx += 2
	}
	return fmt.Sprintf("keychain_id = $%d AND (tx_id, vout) IN (%s)", start, strings.Join(pairs, ", ")), args
}
