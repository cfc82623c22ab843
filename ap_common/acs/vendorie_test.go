/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAvoidIE(t *testing.T) {
	ssid := []byte{0x00, 0x03, 'a', 'b', 'c'}
	other := []byte{0xdd, 0x05, 0x00, 0x50, 0xf2, 0x01, 0x06}

	cat := func(parts ...[]byte) []byte {
		var b []byte
		for _, p := range parts {
			b = append(b, p...)
		}
		return b
	}

	testCases := []struct {
		name    string
		ies     []byte
		channel int
		found   bool
	}{
		{"empty", nil, 0, false},
		{"alone", BuildAvoidIE(6), 6, true},
		{"afterSSID", cat(ssid, BuildAvoidIE(36)), 36, true},
		{"otherVendor", cat(ssid, other), 0, false},
		{"otherThenAvoid", cat(other, BuildAvoidIE(11)), 11, true},
		{"truncated", []byte{0xdd, 0x05, 0x00, 0xa0, 0xc6}, 0, false},
		{"short", []byte{0xdd, 0x04, 0x00, 0xa0, 0xc6, 0x01}, 0, false},
		{"zeroChannel", BuildAvoidIE(0), 0, false},
		{"wrongType", []byte{0xdd, 0x05, 0x00, 0xa0, 0xc6, 0x02, 0x06},
			0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			ch, ok := ParseAvoidIE(tc.ies)
			assert.Equal(tc.found, ok)
			assert.Equal(tc.channel, ch)
		})
	}
}

func TestBuildAvoidIE(t *testing.T) {
	assert := require.New(t)
	assert.Equal([]byte{0xdd, 0x05, 0x00, 0xa0, 0xc6, 0x01, 0x06},
		BuildAvoidIE(6))
}

func TestAvoidFreqs(t *testing.T) {
	assert := require.New(t)

	assert.Equal([]int{2437, 2432, 2442}, avoidFreqs(6))
	assert.Equal([]int{2412, 2417}, avoidFreqs(1))
	assert.Equal([]int{2484, 2472}, avoidFreqs(14))
	assert.Equal([]int{5180}, avoidFreqs(36))
}

func TestAvoidanceList(t *testing.T) {
	assert := require.New(t)

	a := NewAvoidanceList()
	for i := 0; i < MaxAvoidChannels; i++ {
		assert.True(a.Add(5180 + 20*i))
	}
	assert.Equal(MaxAvoidChannels, a.Len())

	// Full: new entries are dropped, existing ones are still accepted
	assert.False(a.Add(2412))
	assert.True(a.Add(5180))
	assert.False(a.Contains(2412))
	assert.True(a.Contains(5200))
	assert.Equal(MaxAvoidChannels, a.Len())

	snap := a.Snapshot()
	assert.Len(snap, MaxAvoidChannels)
	assert.Equal(5180, snap[0])

	a.Reset()
	assert.Equal(0, a.Len())
	assert.False(a.Contains(5180))
	assert.True(a.Add(2412))

	var nilList *AvoidanceList
	assert.Empty(nilList.snapshotSet())
}

func TestAvoidanceListConcurrent(t *testing.T) {
	assert := require.New(t)

	a := NewAvoidanceList()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				a.Add(5180 + 20*(base*4+j))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(MaxAvoidChannels, a.Len())
	seen := make(map[int]bool)
	for _, f := range a.Snapshot() {
		assert.False(seen[f])
		seen[f] = true
	}
}
