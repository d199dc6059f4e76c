// Package outbox streams committed ledger transactions to downstream
// consumers, one account at a time, advancing a durable per-account
// cursor only after the handler reports success. Modeled on the
// teacher's internal/storage message queue (GetPendingMessages, ack
// after successful delivery) generalized from a single queue to
// independent per-account cursors fanned out with errgroup.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/custody-ledger/internal/config"
	"github.com/klingon-exchange/custody-ledger/internal/ledgercore"
	"github.com/klingon-exchange/custody-ledger/internal/logging"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// JournalEvent is one committed ledger transaction, ready to hand to a
// downstream consumer. Consumers dedupe on (AccountId, Sequence).
type JournalEvent struct {
	AccountId primitives.AccountId
	Sequence  int64
	Template  string
	Meta      json.RawMessage
}

// Handler processes one JournalEvent. An error leaves the cursor
// unadvanced, so the event is redelivered on the next poll: at-least-once.
type Handler func(ctx context.Context, event JournalEvent) error

// Publisher polls for newly committed transactions across every account
// and fans each poll's delivery out per account, one goroutine each. The
// next poll starts only after every account's delivery from the current
// poll has returned, so a slow or stuck handler for one account delays
// all accounts; a failure for one account cancels the others' in-flight
// deliveries for that poll.
type Publisher struct {
	db           *sql.DB
	log          *logging.Logger
	pollInterval time.Duration
	batchSize    int
}

// New constructs a Publisher over db using cfg's polling parameters.
func New(db *sql.DB, cfg config.OutboxConfig) *Publisher {
	return &Publisher{
		db:           db,
		log:          logging.GetDefault().Component("outbox"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
	}
}

// Run polls until ctx is canceled, delivering every newly committed
// transaction to handler in per-account, sequence order.
func (p *Publisher) Run(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx, handler); err != nil {
				p.log.Error("outbox poll failed", "err", err)
			}
		}
	}
}

func (p *Publisher) pollOnce(ctx context.Context, handler Handler) error {
	accountIds, err := p.listAccounts(ctx)
	if err != nil {
		return fmt.Errorf("outbox: list accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, accountId := range accountIds {
		accountId := accountId
		g.Go(func() error {
			return p.deliverAccount(gctx, accountId, handler)
		})
	}
	return g.Wait()
}

func (p *Publisher) listAccounts(ctx context.Context) ([]primitives.AccountId, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT account_id FROM journals`)
	if err != nil {
		return nil, ledgercore.WrapDatabase("outbox.listAccounts", err)
	}
	defer rows.Close()

	var out []primitives.AccountId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, ledgercore.WrapDatabase("outbox.listAccounts: scan", err)
		}
		id, err := primitives.ParseAccountId(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Publisher) deliverAccount(ctx context.Context, accountId primitives.AccountId, handler Handler) error {
	cursor, err := p.cursor(ctx, accountId)
	if err != nil {
		return err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT t.sequence, t.template, t.meta_json
		FROM transactions t
		JOIN journals j ON j.id = t.journal_id
		WHERE j.account_id = $1 AND t.sequence > $2
		ORDER BY t.sequence ASC
		LIMIT $3
	`, accountId.String(), cursor, p.batchSize)
	if err != nil {
		return ledgercore.WrapDatabase("outbox.deliverAccount: query", err)
	}
	defer rows.Close()

	var events []JournalEvent
	for rows.Next() {
		var e JournalEvent
		e.AccountId = accountId
		var meta []byte
		if err := rows.Scan(&e.Sequence, &e.Template, &meta); err != nil {
			return ledgercore.WrapDatabase("outbox.deliverAccount: scan", err)
		}
		e.Meta = meta
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range events {
		if err := handler(ctx, e); err != nil {
			// Stop at the first failure: later events stay undelivered
			// and are retried from this cursor on the next poll.
			return fmt.Errorf("outbox: handler failed for account %s seq %d: %w", accountId, e.Sequence, err)
		}
		if err := p.advanceCursor(ctx, accountId, e.Sequence); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) cursor(ctx context.Context, accountId primitives.AccountId) (int64, error) {
	var seq int64
	err := p.db.QueryRowContext(ctx, `
		SELECT last_acked_seq FROM outbox_cursors WHERE account_id = $1
	`, accountId.String()).Scan(&seq)
	if err == nil {
		return seq, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return 0, ledgercore.WrapDatabase("outbox.cursor", err)
}

func (p *Publisher) advanceCursor(ctx context.Context, accountId primitives.AccountId, seq int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO outbox_cursors (account_id, last_acked_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_id) DO UPDATE
		SET last_acked_seq = EXCLUDED.last_acked_seq, updated_at = now()
	`, accountId.String(), seq)
	if err != nil {
		return ledgercore.WrapDatabase("outbox.advanceCursor", err)
	}
	return nil
}
