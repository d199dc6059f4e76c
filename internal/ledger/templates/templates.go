// Package templates implements the fixed double-entry templates the
// ledger engine posts against. Every template is registered once at
// startup (mirroring the teacher's message-handler registry in
// internal/storage and moontrack's ledger.Registry), and the registry
// validates each template's account list before the engine ever runs,
// so a typo in a sub-account name fails fast instead of producing an
// unbalanced posting at 3am.
package templates

import (
	"fmt"

	"github.com/klingon-exchange/custody-ledger/internal/ledgercore"
)

// Suffix names one of a wallet's seven canonical sub-accounts.
type Suffix string

const (
	OnchainIncoming Suffix = "onchain_incoming"
	OnchainAtRest   Suffix = "onchain_at_rest"
	OnchainOutgoing Suffix = "onchain_outgoing"
	LogicalIncoming Suffix = "logical_incoming"
	LogicalAtRest   Suffix = "logical_at_rest"
	LogicalOutgoing Suffix = "logical_outgoing"
	Fee             Suffix = "fee"

	// External is the journal-scoped contra account every template may
	// use to balance a posting against the world outside the wallet's
	// seven accounts (new coins arriving, spending fees earned). It is
	// deliberately excluded from Canonical: a wallet still owns exactly
	// the seven accounts the data model promises, and External never
	// appears in a WalletBalanceSummary.
	External Suffix = "external"
)

// Canonical lists every sub-account a wallet is given, in creation order.
var Canonical = []Suffix{
	OnchainIncoming, OnchainAtRest, OnchainOutgoing,
	LogicalIncoming, LogicalAtRest, LogicalOutgoing, Fee,
}

func isCanonical(s Suffix) bool {
	if s == External {
		return true
	}
	for _, c := range Canonical {
		if c == s {
			return true
		}
	}
	return false
}

// Layer names which of an account's three balance layers an Entry
// affects, mirroring sqlx-ledger's settled/pending/encumbered split: the
// same wallet sub-account carries a distinct running total per layer, so
// a single account can simultaneously report (for example) a pending
// amount and an encumbered amount without those two figures colliding.
type Layer string

const (
	LayerSettled    Layer = "settled"
	LayerPending    Layer = "pending"
	LayerEncumbered Layer = "encumbered"
)

// Entry is one signed movement against a wallet sub-account's layer.
// Positive amounts are debits, negative are credits; callers (the
// engine) supply the sign, templates only declare which accounts
// participate.
type Entry struct {
	Account Suffix
	Layer   Layer
	Amount  int64
}

// Template is a named, versioned, fixed shape of a posting. Accounts
// lists every sub-account this template is allowed to touch; the engine
// rejects any Entry a builder produces against an account outside this
// list, and the registry rejects any account outside Canonical and
// External at registration time.
type Template struct {
	Name     string
	Version  int
	Accounts []Suffix
}

func (t Template) touches(s Suffix) bool {
	for _, a := range t.Accounts {
		if a == s {
			return true
		}
	}
	return false
}

// validate checks that every account this template declares is one of
// the seven canonical sub-accounts or the journal's External contra
// account. Anything else is a configuration
// error, fatal at startup per spec's Serialization error kind.
func (t Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: template has empty name", ledgercore.ErrSerialization)
	}
	if len(t.Accounts) == 0 {
		return fmt.Errorf("%w: template %q declares no accounts", ledgercore.ErrSerialization, t.Name)
	}
	for _, a := range t.Accounts {
		if !isCanonical(a) {
			return fmt.Errorf("%w: template %q references unknown sub-account %q",
				ledgercore.ErrSerialization, t.Name, a)
		}
	}
	return nil
}

// Registry holds every template registered at startup, keyed by name.
// It is immutable once built: the engine only ever looks templates up,
// never mutates the registry at runtime.
type Registry struct {
	byName map[string]Template
}

// NewRegistry registers every built-in template and validates each one.
// It returns an error wrapping ledgercore.ErrSerialization on the first
// invalid template, the way the teacher's registry construction fails
// fast on a bad handler registration.
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]Template)}
	for _, t := range builtins {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t Template) error {
	if err := t.validate(); err != nil {
		return err
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("%w: template %q registered twice", ledgercore.ErrSerialization, t.Name)
	}
	r.byName[t.Name] = t
	return nil
}

// Lookup returns the named template, or ok=false if nothing is
// registered under that name.
func (r *Registry) Lookup(name string) (Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// CheckEntries verifies that every entry references an account declared
// by its template, and that the entries sum to zero. A template that
// otherwise validated at registration but whose builder produced an
// out-of-band account, or unbalanced amounts, is an engine programming
// error rather than a startup misconfiguration, but the caller (engine)
// still surfaces it as ErrLedgerImbalance rather than panicking, since
// the original's invariant is "never silently swallowed," not "never
// detected."
func CheckEntries(t Template, entries []Entry) error {
	var sum int64
	for _, e := range entries {
		if !t.touches(e.Account) {
			return fmt.Errorf("%w: template %q does not declare account %q",
				ledgercore.ErrLedgerImbalance, t.Name, e.Account)
		}
		sum += e.Amount
	}
	if sum != 0 {
		return fmt.Errorf("%w: template %q entries sum to %d, want 0",
			ledgercore.ErrLedgerImbalance, t.Name, sum)
	}
	return nil
}

// Name constants for the six ledger engine operations, shared between
// the registry and internal/ledger so callers never hand-type a string.
const (
	UTXODetected  = "utxo_detected"
	UTXOSettled   = "utxo_settled"
	PayoutQueued  = "payout_queued"
	BatchCreated  = "batch_created"
	SpendDetected = "spend_detected"
	SpendSettled  = "spend_settled"
)

var builtins = []Template{
	{
		Name:    UTXODetected,
		Version: 1,
		Accounts: []Suffix{
			OnchainIncoming, LogicalIncoming, Fee, External,
		},
	},
	{
		// Balances entirely within the wallet's own accounts: money
		// already counted in the incoming queue simply moves to at-rest,
		// or — when a spend already claimed the output before its
		// confirmation arrived — directly into the outgoing path instead.
		Name:    UTXOSettled,
		Version: 1,
		Accounts: []Suffix{
			OnchainIncoming, OnchainAtRest, OnchainOutgoing, LogicalIncoming, LogicalAtRest,
		},
	},
	{
		Name:    PayoutQueued,
		Version: 1,
		Accounts: []Suffix{
			LogicalOutgoing, External,
		},
	},
	{
		Name:    BatchCreated,
		Version: 1,
		Accounts: []Suffix{
			OnchainIncoming, OnchainAtRest, OnchainOutgoing, LogicalOutgoing, LogicalAtRest, Fee, External,
		},
	},
	{
		Name:    SpendDetected,
		Version: 1,
		Accounts: []Suffix{
			OnchainIncoming, OnchainAtRest, OnchainOutgoing, LogicalAtRest, LogicalOutgoing,
			LogicalIncoming, Fee, External,
		},
	},
	{
		Name:    SpendSettled,
		Version: 1,
		Accounts: []Suffix{
			LogicalAtRest, LogicalOutgoing,
		},
	},
}
