// Package ledger implements the double-entry posting engine: per-account
// journals, per-wallet sub-account sets, and the typed operations that
// post balanced entries under an externally supplied database
// transaction. The engine holds no in-memory state beyond the template
// registry, which is immutable after construction.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/ledgercore"
	"github.com/klingon-exchange/custody-ledger/internal/logging"
	"github.com/klingon-exchange/custody-ledger/internal/metrics"
	"github.com/klingon-exchange/custody-ledger/internal/money"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// Engine posts ledger transactions against the compiled template
// registry. It is safe for concurrent use: every method takes the
// caller's own *sql.Tx and touches no shared mutable state.
type Engine struct {
	registry *templates.Registry
	log      *logging.Logger
}

// NewEngine constructs an Engine over a template registry built by
// templates.NewRegistry. Construction never touches the database.
func NewEngine(registry *templates.Registry) *Engine {
	return &Engine{registry: registry, log: logging.GetDefault().Component("ledger")}
}

// WalletAccountsFor exposes ensureWalletAccounts to callers that need the
// seven sub-account ids directly (e.g. for get_wallet_ledger_account_balances
// without posting anything).
func (e *Engine) WalletAccountsFor(ctx context.Context, tx *sql.Tx, accountId primitives.AccountId, walletId primitives.WalletId) (WalletAccounts, error) {
	return ensureWalletAccounts(ctx, tx, accountId, walletId)
}

func (e *Engine) post(
	ctx context.Context, tx *sql.Tx,
	wa WalletAccounts, templateName string, ledgerTxId primitives.LedgerTransactionId,
	entries []templates.Entry, meta interface{},
) error {
	tmpl, ok := e.registry.Lookup(templateName)
	if !ok {
		return fmt.Errorf("%w: unregistered template %q", ledgercore.ErrSerialization, templateName)
	}
	if err := templates.CheckEntries(tmpl, entries); err != nil {
		return err
	}

	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT true FROM transactions WHERE id = $1`, ledgerTxId.String()).Scan(&exists)
	switch {
	case err == nil:
		// Already posted: idempotent no-op, per spec.md §4.3.
		metrics.LedgerPostingsTotal.WithLabelValues(templateName, "replay").Inc()
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return ledgercore.WrapDatabase("ledger.post: idempotency check", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: marshal %s meta: %v", ledgercore.ErrSerialization, templateName, err)
	}

	var sequence int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE journals SET next_sequence = next_sequence + 1
		WHERE id = $1
		RETURNING next_sequence - 1
	`, wa.JournalId.String()).Scan(&sequence); err != nil {
		return ledgercore.WrapDatabase("ledger.post: assign sequence", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, journal_id, sequence, template, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`, ledgerTxId.String(), wa.JournalId.String(), sequence, templateName, metaJSON); err != nil {
		return ledgercore.WrapDatabase("ledger.post: insert transaction", err)
	}

	for _, entry := range entries {
		if entry.Amount == 0 {
			continue
		}
		accountId := wa.byName(entry.Account)
		layer := entry.Layer
		if layer == "" {
			layer = templates.LayerSettled
		}
		direction := "debit"
		amount := entry.Amount
		if amount < 0 {
			direction = "credit"
			amount = -amount
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries (transaction_id, account_id, layer, amount_sats, direction)
			VALUES ($1, $2, $3, $4, $5)
		`, ledgerTxId.String(), accountId.String(), string(layer), amount, direction); err != nil {
			return ledgercore.WrapDatabase("ledger.post: insert entry", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (account_id, layer, balance, version, updated_at)
			VALUES ($1, $2, $3, 1, now())
			ON CONFLICT (account_id, layer) DO UPDATE
			SET balance = balances.balance + EXCLUDED.balance,
			    version = balances.version + 1,
			    updated_at = now()
		`, accountId.String(), string(layer), entry.Amount); err != nil {
			return ledgercore.WrapDatabase("ledger.post: update balance", err)
		}
	}

	metrics.LedgerPostingsTotal.WithLabelValues(templateName, "posted").Inc()
	return nil
}

// UTXODetectedMeta is the opaque metadata attached to a utxo_detected
// posting, serialized verbatim into the journal event.
type UTXODetectedMeta struct {
	KeychainId primitives.KeychainId `json:"keychain_id"`
	OutPoint   primitives.OutPoint   `json:"outpoint"`
	Satoshis   money.Satoshis        `json:"satoshis"`
}

// UTXODetected posts utxo_detected: the output adds to both the on-chain
// and logical incoming queues, and its share of the eventual spending fee
// is encumbered against the fee account. The counterpart value entering
// the wallet's books is drawn from the journal's external contra account.
func (e *Engine) UTXODetected(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta UTXODetectedMeta, p UTXODetectedParams,
) error {
	return e.post(ctx, tx, wa, templates.UTXODetected, ledgerTxId, buildUTXODetectedEntries(p), meta)
}

func buildUTXODetectedEntries(p UTXODetectedParams) []templates.Entry {
	s := p.Satoshis.Int64()
	f := p.EncumberedSpendingFeeSats.Int64()
	entries := []templates.Entry{
		{Account: templates.OnchainIncoming, Layer: templates.LayerPending, Amount: s},
		{Account: templates.LogicalIncoming, Layer: templates.LayerPending, Amount: s},
		{Account: templates.Fee, Layer: templates.LayerEncumbered, Amount: f},
	}
	return balanceWithExternal(entries)
}

// balanceWithExternal appends a single External leg computed as the
// residual needed to bring entries to zero, so a template's real legs
// are only ever derived from the business quantities they represent —
// never hand-balanced against each other. If entries already sum to
// zero, no leg is appended.
func balanceWithExternal(entries []templates.Entry) []templates.Entry {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum == 0 {
		return entries
	}
	return append(entries, templates.Entry{Account: templates.External, Layer: templates.LayerSettled, Amount: -sum})
}

// UTXOSettledMeta is the opaque metadata attached to a utxo_settled
// posting.
type UTXOSettledMeta struct {
	KeychainId primitives.KeychainId `json:"keychain_id"`
	OutPoint   primitives.OutPoint   `json:"outpoint"`
	Satoshis   money.Satoshis        `json:"satoshis"`
}

// UTXOSettled posts utxo_settled. If AlreadySpentTxId is set, a spend
// already claimed this output before its confirmation arrived, so per
// spec.md §4.3's critical ordering rule the on-chain move that would
// normally land the value in at-rest is redirected straight into the
// outgoing path instead; the logical legs are unaffected either way.
func (e *Engine) UTXOSettled(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta UTXOSettledMeta, p UTXOSettledParams,
) error {
	return e.post(ctx, tx, wa, templates.UTXOSettled, ledgerTxId, buildUTXOSettledEntries(p), meta)
}

func buildUTXOSettledEntries(p UTXOSettledParams) []templates.Entry {
	s := p.Satoshis.Int64()
	entries := []templates.Entry{
		{Account: templates.OnchainIncoming, Layer: templates.LayerPending, Amount: -s},
		{Account: templates.LogicalIncoming, Layer: templates.LayerPending, Amount: -s},
		{Account: templates.LogicalAtRest, Layer: templates.LayerSettled, Amount: s},
	}
	if p.AlreadySpentTxId == nil {
		entries = append(entries, templates.Entry{Account: templates.OnchainAtRest, Layer: templates.LayerSettled, Amount: s})
	} else {
		entries = append(entries, templates.Entry{Account: templates.OnchainOutgoing, Layer: templates.LayerPending, Amount: s})
	}
	return entries
}

// PayoutQueuedMeta is the opaque metadata attached to a payout_queued
// posting.
type PayoutQueuedMeta struct {
	PayoutId    primitives.PayoutId `json:"payout_id"`
	Satoshis    money.Satoshis      `json:"satoshis"`
	Destination string              `json:"destination"`
}

// PayoutQueued posts payout_queued: the requested amount is encumbered
// against the wallet's logical outgoing queue ahead of batch construction.
func (e *Engine) PayoutQueued(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta PayoutQueuedMeta, p PayoutQueuedParams,
) error {
	return e.post(ctx, tx, wa, templates.PayoutQueued, ledgerTxId, buildPayoutQueuedEntries(p), meta)
}

func buildPayoutQueuedEntries(p PayoutQueuedParams) []templates.Entry {
	amt := p.Satoshis.Int64()
	return balanceWithExternal([]templates.Entry{
		{Account: templates.LogicalOutgoing, Layer: templates.LayerEncumbered, Amount: amt},
	})
}

// BatchCreatedMeta is the opaque metadata attached to a batch_created
// posting.
type BatchCreatedMeta struct {
	BatchId primitives.BatchId `json:"batch_id"`
	Summary WalletTransactionSummary `json:"summary"`
}

// BatchCreated posts batch_created: the wallet's settled on-chain funds
// are consumed to cover the spent amount and fee, the change this
// transaction expects back is encumbered as anticipated incoming, the
// previously queued payout amount resolves out of the encumbered logical
// queue into a pending-outgoing amount, and the reserved spending fee
// moves from the fee account's encumbered layer to its pending layer.
func (e *Engine) BatchCreated(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta BatchCreatedMeta,
) error {
	return e.post(ctx, tx, wa, templates.BatchCreated, ledgerTxId, buildBatchCreatedEntries(meta.Summary), meta)
}

func buildBatchCreatedEntries(s WalletTransactionSummary) []templates.Entry {
	total := s.TotalUtxoIn.Int64()
	settled := s.TotalUtxoSettled.Int64()
	change := s.ChangeSats.Int64()
	fee := s.FeeSats.Int64()
	released := s.EncumberedFeesReleased.Int64()
	spent := total - change - fee

	entries := []templates.Entry{
		// The change this transaction expects back is not yet a real
		// on-chain output, only anticipated.
		{Account: templates.OnchainIncoming, Layer: templates.LayerEncumbered, Amount: change},
		{Account: templates.OnchainAtRest, Layer: templates.LayerSettled, Amount: -settled},
		{Account: templates.OnchainOutgoing, Layer: templates.LayerPending, Amount: total - fee},
		{Account: templates.LogicalOutgoing, Layer: templates.LayerPending, Amount: spent},
		{Account: templates.LogicalAtRest, Layer: templates.LayerSettled, Amount: -(spent + fee)},
		{Account: templates.LogicalOutgoing, Layer: templates.LayerEncumbered, Amount: -spent},
		{Account: templates.Fee, Layer: templates.LayerEncumbered, Amount: -released},
		{Account: templates.Fee, Layer: templates.LayerPending, Amount: fee},
	}
	return balanceWithExternal(entries)
}

// SpendDetectedMeta is the opaque metadata attached to a spend_detected
// posting.
type SpendDetectedMeta struct {
	Summary                       WalletTransactionSummary          `json:"summary"`
	WithdrawFromLogicalWhenSettled map[primitives.OutPoint]money.Satoshis `json:"withdraw_from_logical_when_settled,omitempty"`
}

// SpendDetected posts spend_detected: the transaction has broadcast but
// not confirmed. The settled portion of the spend moves on-chain funds
// into the outgoing path immediately; any input that had not yet
// confirmed defers its logical debit, recorded in
// WithdrawFromLogicalWhenSettled and resolved by SpendSettled.
func (e *Engine) SpendDetected(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta SpendDetectedMeta, p SpendDetectedParams,
) error {
	return e.post(ctx, tx, wa, templates.SpendDetected, ledgerTxId, buildSpendDetectedEntries(p), meta)
}

func buildSpendDetectedEntries(p SpendDetectedParams) []templates.Entry {
	s := p.Summary
	total := s.TotalUtxoIn.Int64()
	settled := s.TotalUtxoSettled.Int64()
	change := s.ChangeSats.Int64()
	fee := s.FeeSats.Int64()
	reserved := p.ReservedFees.Int64()
	encumberedFee := p.EncumberedSpendingFeeSats.Int64()
	spent := total - change - fee

	var deferred int64
	for _, v := range p.WithdrawFromLogicalWhenSettled {
		deferred += v.Int64()
	}

	entries := []templates.Entry{
		// Only the already-confirmed share of the inputs moves on the
		// on-chain side now; any input still unconfirmed stays put in
		// onchain_incoming until its own utxo_settled arrives.
		{Account: templates.OnchainAtRest, Layer: templates.LayerSettled, Amount: -settled},
		{Account: templates.OnchainOutgoing, Layer: templates.LayerPending, Amount: settled},
		// Confirmed inputs leave logical at-rest now; unconfirmed inputs
		// leave logical incoming instead (their at-rest leg is deferred
		// until spend_settled resolves it) — either way the value lands
		// in the logical outgoing queue today, net of fee.
		{Account: templates.LogicalAtRest, Layer: templates.LayerSettled, Amount: -(total - change - deferred)},
		{Account: templates.LogicalIncoming, Layer: templates.LayerPending, Amount: -deferred},
		{Account: templates.LogicalOutgoing, Layer: templates.LayerPending, Amount: spent},
		{Account: templates.Fee, Layer: templates.LayerEncumbered, Amount: encumberedFee - reserved},
		{Account: templates.Fee, Layer: templates.LayerPending, Amount: fee},
	}
	return balanceWithExternal(entries)
}

// SpendSettledMeta is the opaque metadata attached to a spend_settled
// posting.
type SpendSettledMeta struct {
	PendingId primitives.LedgerTransactionId `json:"pending_id"`
}

// SpendSettled posts spend_settled: the broadcast transaction has
// confirmed. DeferredLogical resolves the logical debits spend_detected
// deferred for inputs that were unconfirmed at broadcast time.
func (e *Engine) SpendSettled(
	ctx context.Context, tx *sql.Tx, wa WalletAccounts,
	ledgerTxId primitives.LedgerTransactionId, meta SpendSettledMeta, deferredLogical money.Satoshis,
) error {
	if deferredLogical.IsZero() {
		// Nothing was deferred: still post a zero-effect transaction so
		// the idempotency ledger records that this pending id resolved.
		return e.post(ctx, tx, wa, templates.SpendSettled, ledgerTxId, nil, meta)
	}
	return e.post(ctx, tx, wa, templates.SpendSettled, ledgerTxId, buildSpendSettledEntries(deferredLogical), meta)
}

func buildSpendSettledEntries(deferredLogical money.Satoshis) []templates.Entry {
	d := deferredLogical.Int64()
	return []templates.Entry{
		{Account: templates.LogicalAtRest, Layer: templates.LayerSettled, Amount: -d},
		{Account: templates.LogicalOutgoing, Layer: templates.LayerPending, Amount: d},
	}
}

// SumReservedFeesInTxs sums the fee-account entries of the given
// transactions. Unknown ids contribute zero, matching spec.md §4.3.
func SumReservedFeesInTxs(ctx context.Context, q Queryer, ledgerTxIds []primitives.LedgerTransactionId) (money.Satoshis, error) {
	if len(ledgerTxIds) == 0 {
		return money.Zero, nil
	}

	args := make([]interface{}, len(ledgerTxIds))
	placeholders := make([]string, len(ledgerTxIds))
	for i, id := range ledgerTxIds {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}

	var total sql.NullInt64
	query := fmt.Sprintf(`
		SELECT SUM(CASE WHEN e.direction = 'debit' THEN e.amount_sats ELSE -e.amount_sats END)
		FROM entries e
		JOIN transactions t ON t.id = e.transaction_id
		JOIN accounts a ON a.id = e.account_id
		WHERE t.id IN (%s) AND a.name = 'fee'
	`, joinPlaceholders(placeholders))

	row := q.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&total); err != nil {
		return money.Zero, ledgercore.WrapDatabase("ledger.SumReservedFeesInTxs", err)
	}
	if !total.Valid {
		return money.Zero, nil
	}
	return money.NewSatoshis(total.Int64), nil
}

// Queryer is satisfied by both *sql.DB and *sql.Tx for read-only queries.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += ", " + p
	}
	return out
}

// LayerBalances holds one account's three independent running balances,
// mirroring sqlx-ledger's settled/pending/encumbered split (see
// templates.Layer). A wallet sub-account can carry a nonzero value in
// more than one layer at once.
type LayerBalances struct {
	Settled    money.Satoshis
	Pending    money.Satoshis
	Encumbered money.Satoshis
}

// GetWalletLedgerAccountBalances reads each of a wallet's seven
// sub-accounts, broken out by layer, at the journal's latest committed
// version.
func GetWalletLedgerAccountBalances(ctx context.Context, q Queryer, wa WalletAccounts) (map[templates.Suffix]LayerBalances, error) {
	out := make(map[templates.Suffix]LayerBalances, len(templates.Canonical))
	for _, suffix := range templates.Canonical {
		acctId := wa.byName(suffix)
		rows, err := q.QueryContext(ctx, `SELECT layer, balance FROM balances WHERE account_id = $1`, acctId.String())
		if err != nil {
			return nil, ledgercore.WrapDatabase("ledger.GetWalletLedgerAccountBalances", err)
		}

		var lb LayerBalances
		for rows.Next() {
			var layer string
			var balance int64
			if err := rows.Scan(&layer, &balance); err != nil {
				rows.Close()
				return nil, ledgercore.WrapDatabase("ledger.GetWalletLedgerAccountBalances: scan", err)
			}
			switch templates.Layer(layer) {
			case templates.LayerSettled:
				lb.Settled = money.NewSatoshis(balance)
			case templates.LayerPending:
				lb.Pending = money.NewSatoshis(balance)
			case templates.LayerEncumbered:
				lb.Encumbered = money.NewSatoshis(balance)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, ledgercore.WrapDatabase("ledger.GetWalletLedgerAccountBalances: rows", err)
		}
		rows.Close()
		out[suffix] = lb
	}
	return out, nil
}
