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
)

// MaxAvoidChannels bounds the size of an AvoidanceList.
const MaxAvoidChannels = 16

// AvoidanceList is the set of frequencies that co-located devices have asked
// us to stay off of.  It lives as long as the AP it belongs to, is only ever
// appended to until Reset, and may be shared by concurrent ACS runs.  Once full,
// further additions are dropped.
type AvoidanceList struct {
	freqs [MaxAvoidChannels]int
	n     int
	sync.Mutex
}

// NewAvoidanceList returns an empty list.
func NewAvoidanceList() *AvoidanceList {
	return &AvoidanceList{}
}

func (a *AvoidanceList) has(freq int) bool {
	for i := 0; i < a.n; i++ {
		if a.freqs[i] == freq {
			return true
		}
	}
	return false
}

// Add records a frequency.  It returns false if the list was full and the
// frequency wasn't already present.
func (a *AvoidanceList) Add(freq int) bool {
	a.Lock()
	defer a.Unlock()

	if a.has(freq) {
		return true
	}
	if a.n == len(a.freqs) {
		return false
	}
	a.freqs[a.n] = freq
	a.n++
	return true
}

// Contains returns true if the frequency is on the list.
func (a *AvoidanceList) Contains(freq int) bool {
	a.Lock()
	defer a.Unlock()

	return a.has(freq)
}

// Len returns the number of frequencies on the list.
func (a *AvoidanceList) Len() int {
	a.Lock()
	defer a.Unlock()

	return a.n
}

// Snapshot returns a copy of the list, in the order entries were added.
func (a *AvoidanceList) Snapshot() []int {
	a.Lock()
	defer a.Unlock()

	return append([]int(nil), a.freqs[:a.n]...)
}

// Reset empties the list.
func (a *AvoidanceList) Reset() {
	a.Lock()
	a.n = 0
	a.Unlock()
}

func (a *AvoidanceList) snapshotSet() map[int]bool {
	set := make(map[int]bool)
	if a != nil {
		for _, f := range a.Snapshot() {
			set[f] = true
		}
	}
	return set
}
