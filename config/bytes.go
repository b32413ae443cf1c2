package config

import (
	"github.com/alecthomas/units"
)

// Bytes is a wrapper type for a byte count which provides human-friendly
// text (un)marshaling using base-2 suffixes, e.g. "16MiB".
type Bytes int64

// String returns the string representation of the byte count.
func (b *Bytes) String() string {
	return units.Base2Bytes(*b).String()
}

// UnmarshalText parses text into a byte count.
func (b *Bytes) UnmarshalText(text []byte) error {
	// Ignore if there is no value set.
	if len(text) == 0 {
		return nil
	}
	n, err := units.ParseBase2Bytes(string(text))
	if err != nil {
		return err
	}

	*b = Bytes(n)
	return nil
}

// MarshalText converts a byte count to text.
func (b Bytes) MarshalText() (text []byte, err error) {
	return []byte(b.String()), nil
}

// Set sets the byte count from the given string.
// Implements the pflag.Value interface.
func (b *Bytes) Set(raw string) error {
	return b.UnmarshalText([]byte(raw))
}

// Type returns the name of this type.
// Implements the pflag.Value interface.
func (b *Bytes) Type() string {
	return "bytes"
}
