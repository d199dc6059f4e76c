package primitives

import "fmt"

// KeychainKind is the derivation branch within a wallet: external for
// receive addresses, internal for change addresses. The source this
// system was modeled on accepted anything convertible to this notion;
// here it collapses to a single enum passed by value.
type KeychainKind string

const (
	KeychainExternal KeychainKind = "external"
	KeychainInternal KeychainKind = "internal"
)

// Valid reports whether k is one of the two recognized kinds.
func (k KeychainKind) Valid() bool {
	return k == KeychainExternal || k == KeychainInternal
}

func (k KeychainKind) String() string { return string(k) }

// ParseKeychainKind parses a stored/transmitted keychain kind string.
func ParseKeychainKind(s string) (KeychainKind, error) {
	k := KeychainKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid keychain kind %q", s)
	}
	return k, nil
}
