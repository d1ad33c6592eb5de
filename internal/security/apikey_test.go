// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIKey_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			"leap day boundary",
			time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			"62ef1f6e47c56e22857b5a0456cfd7ebd818151b3bb2f551c6e435091555c67d",
		},
		{
			"year boundary",
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			"c9150a0a28e0bed49c62a7119c6553cab4a18e3b385635dd72ee87dcafac3220",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := APIKey(tt.now)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, KeyLength)
		})
	}
}

func TestAPIKey_UsesUTCDay(t *testing.T) {
	// 23:30 on Feb 29 in UTC-5 is already March 1 in UTC.
	est := time.FixedZone("EST", -5*60*60)
	local := time.Date(2024, 2, 29, 23, 30, 0, 0, est)
	assert.Equal(t, APIKey(time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)), APIKey(local))
}

func TestAPIKey_StableWithinDay(t *testing.T) {
	morning := time.Date(2024, 6, 10, 0, 0, 1, 0, time.UTC)
	night := time.Date(2024, 6, 10, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, APIKey(morning), APIKey(night))
	assert.NotEqual(t, APIKey(morning), APIKey(night.Add(time.Second)))
}

func TestValidAPIKey(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 5, 0, time.UTC)
	assert.True(t, ValidAPIKey(APIKey(now), now))
	assert.True(t, ValidAPIKey(APIKey(now.Add(-time.Minute)), now), "yesterday's key still accepted")
	assert.False(t, ValidAPIKey(APIKey(now.AddDate(0, 0, -2)), now))
	assert.False(t, ValidAPIKey("short", now))
}

func TestKeySource(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	src := KeySource{Now: func() time.Time { return fixed }}
	assert.Equal(t, APIKey(fixed), src.Key())
	assert.Len(t, KeySource{}.Key(), KeyLength)
}
