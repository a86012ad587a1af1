package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that koanf can decode from "30s" style text
// in YAML and environment variables. Negative values are rejected.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) Duration() time.Duration { return time.Duration(d) }

const redacted = "[REDACTED]"

// Secret holds a credential such as an API key. Every printed or
// serialized form is redacted; only Value returns the raw string.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return "Secret(" + redacted + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }
