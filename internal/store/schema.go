package store

// schemaStatements creates every table this core owns. Table names match
// the persistent state layout named in spec.md §6 verbatim, including the
// out-of-scope bdk_*/bria_xpub* tables the core shares the database with
// but never writes to (they belong to the descriptor-persistence and
// xpub-management collaborators).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS journals (
		id            UUID PRIMARY KEY,
		account_id    UUID NOT NULL,
		name          TEXT NOT NULL,
		next_sequence BIGINT NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id         UUID PRIMARY KEY,
		journal_id UUID NOT NULL REFERENCES journals(id),
		wallet_id  UUID NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (wallet_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_wallet ON accounts(wallet_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id          UUID PRIMARY KEY,
		journal_id  UUID NOT NULL REFERENCES journals(id),
		sequence    BIGINT NOT NULL,
		template    TEXT NOT NULL,
		meta_json   JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (journal_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_journal_seq ON transactions(journal_id, sequence)`,

	`CREATE TABLE IF NOT EXISTS entries (
		id             BIGSERIAL PRIMARY KEY,
		transaction_id UUID NOT NULL REFERENCES transactions(id),
		account_id     UUID NOT NULL REFERENCES accounts(id),
		layer          TEXT NOT NULL CHECK (layer IN ('settled', 'pending', 'encumbered')),
		amount_sats    BIGINT NOT NULL,
		direction      TEXT NOT NULL CHECK (direction IN ('debit', 'credit'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_transaction ON entries(transaction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account_id)`,

	// Each account carries up to three independent running balances, one
	// per layer (settled/pending/encumbered), mirroring sqlx-ledger's
	// layer split so a single sub-account can report distinct pending
	// and encumbered figures at once (spec.md §4.4).
	`CREATE TABLE IF NOT EXISTS balances (
		account_id  UUID NOT NULL REFERENCES accounts(id),
		layer       TEXT NOT NULL CHECK (layer IN ('settled', 'pending', 'encumbered')),
		balance     BIGINT NOT NULL DEFAULT 0,
		version     BIGINT NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (account_id, layer)
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_cursors (
		account_id       UUID PRIMARY KEY,
		last_acked_seq   BIGINT NOT NULL DEFAULT 0,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS bria_utxos (
		keychain_id                    UUID NOT NULL,
		tx_id                          TEXT NOT NULL,
		vout                           INTEGER NOT NULL,
		wallet_id                      UUID NOT NULL,
		kind                           TEXT NOT NULL CHECK (kind IN ('external', 'internal')),
		address_idx                    BIGINT NOT NULL,
		address                        TEXT NOT NULL,
		script_hex                     TEXT NOT NULL,
		value_sats                     BIGINT NOT NULL,
		sats_per_vbyte_when_created    DOUBLE PRECISION NOT NULL,
		self_pay                       BOOLEAN NOT NULL DEFAULT false,
		bdk_spent                      BOOLEAN NOT NULL DEFAULT false,
		block_height                   BIGINT,
		spending_batch_id              UUID,
		pending_income_ledger_tx_id    UUID NOT NULL,
		confirmed_income_ledger_tx_id  UUID,
		pending_spend_ledger_tx_id     UUID,
		confirmed_spend_ledger_tx_id   UUID,
		created_at                     TIMESTAMPTZ NOT NULL DEFAULT now(),
		modified_at                    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (keychain_id, tx_id, vout)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bria_utxos_wallet ON bria_utxos(wallet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bria_utxos_outpoint ON bria_utxos(tx_id, vout)`,
	`CREATE INDEX IF NOT EXISTS idx_bria_utxos_reservable
		ON bria_utxos(keychain_id) WHERE bdk_spent = false AND spending_batch_id IS NULL`,

	// Out-of-scope tables, owned by collaborators this core never writes
	// to directly, kept here only so the shared schema matches spec.md §6.
	`CREATE TABLE IF NOT EXISTS bdk_descriptor_checksums (
		keychain_id UUID PRIMARY KEY,
		checksum    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bdk_indexes (
		keychain_id UUID PRIMARY KEY,
		last_index  BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS bdk_sync_times (
		keychain_id UUID PRIMARY KEY,
		synced_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bria_xpubs (
		id           UUID PRIMARY KEY,
		account_id   UUID NOT NULL,
		fingerprint  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bria_xpub_events (
		id        BIGSERIAL PRIMARY KEY,
		xpub_id   UUID NOT NULL REFERENCES bria_xpubs(id),
		event     JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
