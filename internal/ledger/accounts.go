package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klingon-exchange/custody-ledger/internal/ledger/templates"
	"github.com/klingon-exchange/custody-ledger/internal/ledgercore"
	"github.com/klingon-exchange/custody-ledger/internal/primitives"
)

// WalletAccounts is the seven ledger accounts a wallet owns under its
// account's journal, keyed by canonical sub-account name, plus the
// journal's own contra account (externalAccountId) used to balance
// postings against the world outside the wallet set (new coins arriving,
// fees earned). The contra account belongs to the journal, not the
// wallet, so a wallet still owns exactly the seven accounts the data
// model promises; see DESIGN.md's open-question note on this account.
type WalletAccounts struct {
	JournalId        primitives.LedgerJournalId
	externalAccountId primitives.LedgerAccountId

	OnchainIncoming primitives.LedgerAccountId
	OnchainAtRest   primitives.LedgerAccountId
	OnchainOutgoing primitives.LedgerAccountId
	LogicalIncoming primitives.LedgerAccountId
	LogicalAtRest   primitives.LedgerAccountId
	LogicalOutgoing primitives.LedgerAccountId
	Fee             primitives.LedgerAccountId
}


func (w WalletAccounts) byName(s templates.Suffix) primitives.LedgerAccountId {
	switch s {
	case templates.OnchainIncoming:
		return w.OnchainIncoming
	case templates.OnchainAtRest:
		return w.OnchainAtRest
	case templates.OnchainOutgoing:
		return w.OnchainOutgoing
	case templates.LogicalIncoming:
		return w.LogicalIncoming
	case templates.LogicalAtRest:
		return w.LogicalAtRest
	case templates.LogicalOutgoing:
		return w.LogicalOutgoing
	case templates.Fee:
		return w.Fee
	case templates.External:
		return w.externalAccountId
	default:
		panic(fmt.Sprintf("ledger: unknown sub-account suffix %q", s))
	}
}

// ensureWalletAccounts returns the journal and seven sub-accounts for a
// wallet, creating the journal (if this is the account's first wallet)
// and any missing sub-accounts. Journal and account rows are looked up
// by their natural keys (account_id; wallet_id+name) rather than cached,
// since the engine holds no in-memory state beyond the template registry.
func ensureWalletAccounts(
	ctx context.Context, tx *sql.Tx,
	accountId primitives.AccountId, walletId primitives.WalletId,
) (WalletAccounts, error) {
	journalId, err := ensureJournal(ctx, tx, accountId)
	if err != nil {
		return WalletAccounts{}, err
	}

	// The contra account is keyed by the journal itself, not the wallet,
	// so it is created once per journal and shared by every wallet under
	// that account.
	externalId, err := ensureAccount(ctx, tx, journalId, journalId.String(), string(templates.External))
	if err != nil {
		return WalletAccounts{}, err
	}

	wa := WalletAccounts{JournalId: journalId, externalAccountId: externalId}
	for _, suffix := range templates.Canonical {
		acctId, err := ensureAccount(ctx, tx, journalId, walletId.String(), string(suffix))
		if err != nil {
			return WalletAccounts{}, err
		}
		switch suffix {
		case templates.OnchainIncoming:
			wa.OnchainIncoming = acctId
		case templates.OnchainAtRest:
			wa.OnchainAtRest = acctId
		case templates.OnchainOutgoing:
			wa.OnchainOutgoing = acctId
		case templates.LogicalIncoming:
			wa.LogicalIncoming = acctId
		case templates.LogicalAtRest:
			wa.LogicalAtRest = acctId
		case templates.LogicalOutgoing:
			wa.LogicalOutgoing = acctId
		case templates.Fee:
			wa.Fee = acctId
		}
	}
	return wa, nil
}

func ensureJournal(ctx context.Context, tx *sql.Tx, accountId primitives.AccountId) (primitives.LedgerJournalId, error) {
	var idStr string
	err := tx.QueryRowContext(ctx, `SELECT id FROM journals WHERE account_id = $1`, accountId.String()).Scan(&idStr)
	if err == nil {
		return primitives.ParseLedgerJournalId(idStr)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return primitives.LedgerJournalId{}, ledgercore.WrapDatabase("ledger.ensureJournal: lookup", err)
	}

	journalId := primitives.NewLedgerJournalId()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO journals (id, account_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, journalId.String(), accountId.String(), "account:"+accountId.String())
	if err != nil {
		return primitives.LedgerJournalId{}, ledgercore.WrapDatabase("ledger.ensureJournal: insert", err)
	}

	// Another concurrent caller may have won the race; re-read the
	// authoritative row rather than trust the id we just generated.
	if err := tx.QueryRowContext(ctx, `SELECT id FROM journals WHERE account_id = $1`, accountId.String()).Scan(&idStr); err != nil {
		return primitives.LedgerJournalId{}, ledgercore.WrapDatabase("ledger.ensureJournal: reread", err)
	}
	return primitives.ParseLedgerJournalId(idStr)
}

// ensureAccount returns the ledger account keyed by (groupKey, name),
// creating it if absent. groupKey is a wallet id for ordinary wallet
// sub-accounts, or the journal's own id for the journal-scoped contra
// account; the accounts table only enforces uniqueness on the pair, it
// has no opinion on what a group key means.
func ensureAccount(
	ctx context.Context, tx *sql.Tx,
	journalId primitives.LedgerJournalId, groupKey string, name string,
) (primitives.LedgerAccountId, error) {
	var idStr string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM accounts WHERE wallet_id = $1 AND name = $2
	`, groupKey, name).Scan(&idStr)
	if err == nil {
		return primitives.ParseLedgerAccountId(idStr)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return primitives.LedgerAccountId{}, ledgercore.WrapDatabase("ledger.ensureAccount: lookup", err)
	}

	acctId := primitives.NewLedgerAccountId()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, journal_id, wallet_id, name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_id, name) DO NOTHING
	`, acctId.String(), journalId.String(), groupKey, name)
	if err != nil {
		return primitives.LedgerAccountId{}, ledgercore.WrapDatabase("ledger.ensureAccount: insert", err)
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM accounts WHERE wallet_id = $1 AND name = $2
	`, groupKey, name).Scan(&idStr); err != nil {
		return primitives.LedgerAccountId{}, ledgercore.WrapDatabase("ledger.ensureAccount: reread", err)
	}
	return primitives.ParseLedgerAccountId(idStr)
}
