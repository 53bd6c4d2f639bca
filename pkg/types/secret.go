package types

import (
	"encoding/json"
	"fmt"
)

const redacted = "[REDACTED]"

// Secret carries a caller-supplied private key. Every printing path yields a
// placeholder; only Reveal returns the underlying value.
type Secret struct {
	value string
	// typed is false when the request carried a non-string JSON value.
	typed bool
}

func NewSecret(value string) Secret {
	return Secret{value: value, typed: true}
}

// NewMalformedSecret records a present key whose JSON value was not a string.
func NewMalformedSecret() Secret {
	return Secret{}
}

// Reveal returns the key text and whether it arrived as a JSON string.
func (s Secret) Reveal() (string, bool) {
	return s.value, s.typed
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return redacted
}

func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}
