// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security derives the rotating X-API-Key sent with every request.
//
// The key is hex(SHA256(today) XOR SHA256(yesterday)) where both dates are
// formatted yyyy-MM-dd in UTC. Client and backend derive it independently, so
// it changes at midnight UTC without any exchange.
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// DateLayout is the day format fed into the hash.
const DateLayout = "2006-01-02"

// KeyLength is the length of an encoded key in hex characters.
const KeyLength = sha256.Size * 2

// APIKey returns the key valid on the UTC day containing now.
func APIKey(now time.Time) string {
	day := now.UTC()
	today := sha256.Sum256([]byte(day.Format(DateLayout)))
	yesterday := sha256.Sum256([]byte(day.AddDate(0, 0, -1).Format(DateLayout)))

	var key [sha256.Size]byte
	for i := range key {
		key[i] = today[i] ^ yesterday[i]
	}
	return hex.EncodeToString(key[:])
}

// ValidAPIKey reports whether key matches the key for now or for the previous
// day, which tolerates requests that straddle midnight.
func ValidAPIKey(key string, now time.Time) bool {
	if len(key) != KeyLength {
		return false
	}
	current := APIKey(now)
	previous := APIKey(now.UTC().AddDate(0, 0, -1))
	return subtle.ConstantTimeCompare([]byte(key), []byte(current)) == 1 ||
		subtle.ConstantTimeCompare([]byte(key), []byte(previous)) == 1
}

// KeySource produces the key for each request. Tests inject a fixed clock.
type KeySource struct {
	Now func() time.Time
}

// Key returns the current key.
func (s KeySource) Key() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return APIKey(now())
}
