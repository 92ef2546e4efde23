// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package chat derives the conversation key both peers of a direct chat
// converge on.
//
// The key format is the routing contract between independently connecting
// clients: sanitize both identifiers, sort them, concatenate, prefix with
// "chat_". Changing it splits existing conversations.
package chat

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

// KeyPrefix namespaces channel keys.
const KeyPrefix = "chat_"

// ErrInvalidIdentifier is returned when an identifier has nothing left after
// sanitization.
var ErrInvalidIdentifier = errors.New("identifier is empty after sanitization")

// Sanitize keeps letters, digits, '-', '_' and '.'.
func Sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return -1
	}, id)
}

// DeriveKey returns the channel key for a and b. It is symmetric:
// DeriveKey(a, b) == DeriveKey(b, a).
func DeriveKey(a, b string) (string, error) {
	cleanA, cleanB := Sanitize(a), Sanitize(b)
	if cleanA == "" || cleanB == "" {
		return "", ErrInvalidIdentifier
	}
	return join(cleanA, cleanB), nil
}

// LegacyKey reproduces the historical behavior of substituting "user1" and
// "user2" for identifiers that sanitize to nothing. It never fails, so two
// unrelated degenerate identities can share a key; prefer DeriveKey.
func LegacyKey(a, b string) string {
	cleanA, cleanB := Sanitize(a), Sanitize(b)
	if cleanA == "" {
		cleanA = "user1"
	}
	if cleanB == "" {
		cleanB = "user2"
	}
	return join(cleanA, cleanB)
}

func join(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return KeyPrefix + pair[0] + pair[1]
}
