/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"sapacs/common/wifi"
)

// acceptable applies the selection policy to a candidate.
func (r *run) acceptable(c *Channel, avoid map[int]bool) bool {
	cfg := r.cfg

	switch {
	case !c.Valid:
		return false
	case !cfg.allowed(c.Freq):
		return false
	case avoid[c.Freq]:
		return false
	case wifi.Is24(c.Freq) && !wifi.IsNonOverlap(c.Freq):
		// HT40 pairs are built from overlapping channels
		return cfg.params.AllowOverlap24 || cfg.Width() == wifi.Width40
	}
	return true
}

// selectBest walks the sorted spectrum and returns the first channel that
// satisfies the selection policy.  A channel in the preferred channel list may
// take its place if it is weighted no worse.
func (r *run) selectBest(sp *spectrum) *Channel {
	avoid := r.avoid.snapshotSet()

	var best *Channel
	bestIdx := -1
	for i := range sp.chans {
		if r.acceptable(&sp.chans[i], avoid) {
			best = &sp.chans[i]
			bestIdx = i
			break
		}
	}
	if best == nil || r.cfg.inPCL(best.Freq) {
		return best
	}

	for i := bestIdx + 1; i < len(sp.chans); i++ {
		c := &sp.chans[i]
		if best.Weight.Less(c.Weight) {
			break
		}
		if r.cfg.inPCL(c.Freq) && r.acceptable(c, avoid) {
			r.log.Debugf("preferring PCL channel %s over %s",
				wifi.ChanString(c.Freq), wifi.ChanString(best.Freq))
			return c
		}
	}

	return best
}

// secondary24 picks the secondary channel for a 2.4GHz HT40 primary.  The
// lowest channels can only bond upwards and the highest only downwards;
// otherwise we take the better weighted of the two.  Returns 0 if there is
// no usable secondary.
func secondary24(sp *spectrum, primary int) int {
	ch := wifi.FreqToChannel(primary)
	if ch < 1 || ch > 13 {
		return 0
	}

	get := func(n int) *Channel {
		if n < 1 || n > 13 {
			return nil
		}
		return sp.findValid(wifi.ChannelToFreq(wifi.LoBand, n))
	}
	above := get(ch + ht40Step)
	below := get(ch - ht40Step)

	var sec *Channel
	switch {
	case ch < 5:
		sec = above
	case ch > ht40LastBase:
		sec = below
	case below != nil && (above == nil || below.Weight.Less(above.Weight)):
		sec = below
	default:
		sec = above
	}

	if sec == nil {
		return 0
	}
	return sec.Freq
}
