/*
 * Copyright 2026 Avassdal Media Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package identity derives deduplication keys from resource identifying
// fields and maintains the device identity groups built from them.
package identity

import (
	"strings"
)

const (
	FieldSerial = "serial"
	FieldName   = "name"
	FieldAlias  = "alias"
)

// Config controls key derivation. Precedence is the ordered list of identity
// fields considered when resources are matched; SerialTailDigits is the
// length of the numeric-tail key emitted for serial-like values so that
// differently formatted serials ("8700634", "CIP-DEC-634") can meet on the
// shared digit run.
type Config struct {
	Precedence       []string
	SerialTailDigits int
}

// DefaultConfig matches serials first, then declared names, then aliases.
func DefaultConfig() Config {
	return Config{
		Precedence:       []string{FieldSerial, FieldName, FieldAlias},
		SerialTailDigits: 3,
	}
}

// Key is one lookup identity pointing at a device identity group.
type Key struct {
	Field string
	Value string
}

func (k Key) String() string { return k.Field + ":" + k.Value }

// Keys derives the ordered candidate keys for the given identity fields.
// Earlier keys take precedence when resources are grouped.
func (c Config) Keys(serial, name, alias string) []Key {
	fields := map[string]string{
		FieldSerial: serial,
		FieldName:   name,
		FieldAlias:  alias,
	}

	keys := make([]Key, 0, 6)
	seen := make(map[Key]struct{})

	add := func(field, value string) {
		if value == "" {
			return
		}

		k := Key{Field: field, Value: value}
		if _, dup := seen[k]; dup {
			return
		}

		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	precedence := c.Precedence
	if len(precedence) == 0 {
		precedence = DefaultConfig().Precedence
	}

	for _, field := range precedence {
		raw := strings.TrimSpace(fields[field])
		if raw == "" {
			continue
		}

		add(field, Normalize(raw))

		if field == FieldSerial {
			if tail := digitTail(raw, c.tailDigits()); tail != "" {
				add(field, tail)
			}
		}
	}

	return keys
}

func (c Config) tailDigits() int {
	if c.SerialTailDigits > 0 {
		return c.SerialTailDigits
	}

	return DefaultConfig().SerialTailDigits
}

// Normalize collapses an identifier to a comparable form: lowercased with
// separator characters removed.
func Normalize(value string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch r {
		case '-', '_', '.', '/', ' ', ':':
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// digitTail extracts the digits of value and returns the last n of them with
// leading zeros trimmed. Returns "" when the value holds fewer than n digits.
func digitTail(value string, n int) string {
	var digits []byte

	for i := 0; i < len(value); i++ {
		if value[i] >= '0' && value[i] <= '9' {
			digits = append(digits, value[i])
		}
	}

	if len(digits) < n {
		return ""
	}

	tail := string(digits[len(digits)-n:])
	tail = strings.TrimLeft(tail, "0")

	if tail == "" {
		return "0"
	}

	return tail
}
