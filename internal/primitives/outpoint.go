package primitives

import (
	"database/sql/driver"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OutPoint globally identifies a Bitcoin output by the transaction that
// created it and its position within that transaction's output list.
type OutPoint struct {
	TxID chainhash.Hash
	Vout uint32
}

// NewOutPoint builds an OutPoint from a txid hex string and vout.
func NewOutPoint(txidHex string, vout uint32) (OutPoint, error) {
	h, err := chainhash.NewHashFromStr(txidHex)
	if err != nil {
		return OutPoint{}, fmt.Errorf("parse txid: %w", err)
	}
	return OutPoint{TxID: *h, Vout: vout}, nil
}

// String renders the OutPoint in the conventional "txid:vout" form.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Vout)
}

// Equal reports whether two OutPoints refer to the same output.
func (o OutPoint) Equal(other OutPoint) bool {
	return o.TxID == other.TxID && o.Vout == other.Vout
}

// TxIDValue and VoutValue are the two column values to pass as query
// arguments when persisting an OutPoint across its two columns.
func (o OutPoint) TxIDValue() driver.Value { return o.TxID.String() }
func (o OutPoint) VoutValue() driver.Value { return int64(o.Vout) }

// MarshalText implements encoding.TextMarshaler, so an OutPoint can be a
// JSON object key (as in a journal event's withdraw_from_logical_when_settled
// map) or a plain JSON string.
func (o OutPoint) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OutPoint) UnmarshalText(text []byte) error {
	s := string(text)
	sep := len(s)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			sep = i
			break
		}
	}
	if sep == len(s) {
		return fmt.Errorf("parse outpoint %q: missing vout", s)
	}
	var vout uint32
	if _, err := fmt.Sscanf(s[sep+1:], "%d", &vout); err != nil {
		return fmt.Errorf("parse outpoint %q: %w", s, err)
	}
	parsed, err := NewOutPoint(s[:sep], vout)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
