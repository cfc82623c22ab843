/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"fmt"

	"sapacs/common/wifi"
)

// Ranges used to map raw telemetry onto each metric's local scale.
const (
	MinRSSI = -100
	MaxRSSI = 0

	MinCount = 0
	MaxCount = 60

	MinNoiseFloor = -120
	MaxNoiseFloor = -60

	MinTxPower = 0
	MaxTxPower = 63

	// WeightAmountLocal is the internal scale the six configured priorities
	// are redistributed onto.
	WeightAmountLocal = 240

	// WeightScale multiplies the sum of the metric contributions.
	WeightScale = 111

	// WeightMax is the worst weight a channel can be assigned by the
	// weight computation.
	WeightMax = WeightScale * WeightAmountLocal

	// PCLRSSIDiscount is subtracted from the aggregate RSSI of channels
	// in the preferred channel list.
	PCLRSSIDiscount = 10
)

type weightKind uint8

const (
	weightComputed weightKind = iota
	weightAvoided
	weightExcluded
)

// Weight is a channel's score; lower is better.  A computed weight is the
// outcome of the scoring math.  An avoided weight marks a channel advertised
// by a co-located device as one to stay away from.  An excluded weight marks a
// channel that lost, or couldn't take part in, bonded-channel grouping.  The
// three kinds are kept apart so a real score can never be mistaken for a
// marker; they are only flattened by Value.
type Weight struct {
	kind  weightKind
	value int
	span  int
}

// NewWeight returns a computed weight.
func NewWeight(v int) Weight {
	return Weight{kind: weightComputed, value: v}
}

func avoidedWeight() Weight {
	return Weight{kind: weightAvoided}
}

// An excluded weight spanning n 20MHz channels.  A nudge of -1 marks the
// secondary half of a winning 2.4GHz HT40 pair, so it sorts ahead of plain
// losers when picking a secondary channel.
func excludedWeight(n, nudge int) Weight {
	return Weight{kind: weightExcluded, span: n, value: nudge}
}

// Value flattens the weight into a plain sortable integer.
func (w Weight) Value() int {
	switch w.kind {
	case weightAvoided:
		return WeightMax + 1
	case weightExcluded:
		return WeightMax*w.span + w.value
	}
	return w.value
}

// Avoided is true for channels marked by an avoid-channel advertisement.
func (w Weight) Avoided() bool {
	return w.kind == weightAvoided
}

// Excluded is true for channels knocked out by bonded-channel grouping.
func (w Weight) Excluded() bool {
	return w.kind == weightExcluded
}

// Less orders weights: every computed weight beats every avoided one, which
// beats every excluded one.  Within a kind, the lower value wins.
func (w Weight) Less(o Weight) bool {
	if w.kind != o.kind {
		return w.kind < o.kind
	}
	return w.Value() < o.Value()
}

func (w Weight) String() string {
	switch w.kind {
	case weightAvoided:
		return "avoided"
	case weightExcluded:
		return fmt.Sprintf("excluded(%d)", w.Value())
	}
	return fmt.Sprintf("%d", w.value)
}

// Channel is one entry in the spectrum being evaluated.
type Channel struct {
	Freq     int
	Valid    bool
	BSSCount int

	// Strongest signal observed on or bleeding onto this channel, dBm
	RSSI int

	Weight Weight

	// The weight as it stood before bonded-channel grouping
	Snapshot Weight

	// The weight reflects the final bonded grouping
	Finalized bool
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s valid=%v bss=%d rssi=%d weight=%v",
		wifi.ChanString(c.Freq), c.Valid, c.BSSCount, c.RSSI, c.Weight)
}

// spectrum is the per-run working set, owned by a single SelectChannel call.
type spectrum struct {
	chans []Channel
	index map[int]int
}

func newSpectrum(n int) *spectrum {
	return &spectrum{
		chans: make([]Channel, 0, n),
		index: make(map[int]int, n),
	}
}

func (s *spectrum) add(c Channel) {
	s.index[c.Freq] = len(s.chans)
	s.chans = append(s.chans, c)
}

// find returns the entry for a frequency, or nil if there isn't one.
func (s *spectrum) find(freq int) *Channel {
	if i, ok := s.index[freq]; ok {
		return &s.chans[i]
	}
	return nil
}

// findValid returns the entry for a frequency if it exists and is eligible.
func (s *spectrum) findValid(freq int) *Channel {
	if c := s.find(freq); c != nil && c.Valid {
		return c
	}
	return nil
}

func (s *spectrum) reindex() {
	for i := range s.chans {
		s.index[s.chans[i].Freq] = i
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampRSSI(rssi int) int {
	return clampInt(rssi, MinRSSI, MaxRSSI)
}
