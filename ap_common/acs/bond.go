/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"sort"

	"sapacs/common/wifi"
)

// The 2.4GHz HT40 pairs are 4 channels apart; a run of three overlapping
// candidates may start no higher than channel 9.
const (
	ht40Step     = 4
	ht40LastBase = 9
)

// collapse reduces each group of bonded 20MHz channels to a single
// representative carrying the group's summed weight.  The other members of
// the group, and channels which can't be bonded at all, are excluded.
func (r *run) collapse(sp *spectrum, width int) {
	if width <= wifi.Width20 {
		return
	}

	r.collapseWide(sp, width)
	if width == wifi.Width40 {
		r.collapse24(sp)
	}

	// Anything left over in 2.4GHz had no partner to bond with.
	for i := range sp.chans {
		c := &sp.chans[i]
		if c.Valid && !c.Finalized && wifi.Is24(c.Freq) {
			r.exclude(c, 2, 0)
		}
	}
}

func (r *run) exclude(c *Channel, n, nudge int) {
	c.Weight = excludedWeight(n, nudge)
	c.Finalized = true
}

// collapseWide handles the 5 and 6GHz bands, where the regulatory domain
// says which channels bond together.  Groups are formed in increasing
// frequency order.
func (r *run) collapseWide(sp *spectrum, width int) {
	n := width / wifi.Width20

	for i := range sp.chans {
		c := &sp.chans[i]
		if !c.Valid || c.Finalized || wifi.Is24(c.Freq) {
			continue
		}

		b := r.reg.Bond(c.Freq, width)
		if b.Width < width {
			r.log.Debugf("%s doesn't support %dMHz",
				wifi.ChanString(c.Freq), width)
			r.exclude(c, n, 0)
			continue
		}

		members := make([]*Channel, 0, n)
		complete := true
		for _, f := range b.Members() {
			m := sp.find(f)
			if m == nil || !m.Valid || m.Finalized {
				complete = false
				continue
			}
			members = append(members, m)
		}

		if !complete {
			r.log.Debugf("%dMHz group around %s is incomplete",
				width, wifi.ChanString(c.Freq))
			for _, m := range members {
				r.exclude(m, n, 0)
			}
			continue
		}

		r.mergeGroup(members, n)
	}
}

// mergeGroup assigns the summed weight to the best member of a complete
// group.  Members are ordered by frequency, so ties go to the lowest.
func (r *run) mergeGroup(members []*Channel, n int) {
	rep := members[0]
	sum := 0
	for _, m := range members {
		sum += m.Weight.Value()
		if m.Weight.Less(rep.Weight) {
			rep = m
		}
	}

	for _, m := range members {
		if m != rep {
			r.exclude(m, n, 0)
		}
	}
	if !rep.Weight.Avoided() {
		rep.Weight = NewWeight(sum)
	}
	rep.Finalized = true
}

// pair24 merges a 2.4GHz HT40 pair.  The loser is nudged ahead of the plain
// excluded channels, marking it as the preferred secondary.
func (r *run) pair24(x, y *Channel) {
	rep, other := x, y
	if y.Snapshot.Less(x.Snapshot) {
		rep, other = y, x
	}

	sum := x.Snapshot.Value() + y.Snapshot.Value()
	if !rep.Snapshot.Avoided() {
		rep.Weight = NewWeight(sum)
	}
	rep.Finalized = true
	r.exclude(other, 2, -1)
}

// collapse24 pairs up the 2.4GHz channels for HT40.  Each channel may bond
// with the one 4 channels above or below it, so for each run of three
// candidates s, s+4, s+8 we keep whichever of the two overlapping pairs is
// cheaper.  A channel squeezed out of the lower pair is only excluded once it
// has no partner left above it.
func (r *run) collapse24(sp *spectrum) {
	get := func(ch int) *Channel {
		if ch < 1 || ch > 13 {
			return nil
		}
		return sp.findValid(wifi.ChannelToFreq(wifi.LoBand, ch))
	}
	avail := func(c *Channel) bool {
		return c != nil && !c.Finalized
	}

	for s := 1; s <= ht40LastBase; s++ {
		a := get(s)
		if !avail(a) {
			continue
		}

		b := get(s + ht40Step)
		if !avail(b) {
			r.exclude(a, 2, 0)
			continue
		}

		c := get(s + 2*ht40Step)
		if !avail(c) {
			r.pair24(a, b)
			continue
		}

		lower := a.Snapshot.Value() + b.Snapshot.Value()
		upper := b.Snapshot.Value() + c.Snapshot.Value()
		if lower <= upper {
			r.pair24(a, b)
			// c may still bond with the channel above it
			if !avail(get(s + 3*ht40Step)) {
				r.exclude(c, 2, 0)
			}
		} else {
			r.pair24(b, c)
			r.exclude(a, 2, 0)
		}
	}
}

// sortSpectrum orders the spectrum best first: by weight, then by BSS count,
// then by frequency.
func sortSpectrum(sp *spectrum) {
	chans := sp.chans
	sort.SliceStable(chans, func(i, j int) bool {
		a, b := &chans[i], &chans[j]
		if a.Weight.Less(b.Weight) {
			return true
		}
		if b.Weight.Less(a.Weight) {
			return false
		}
		if a.BSSCount != b.BSSCount {
			return a.BSSCount < b.BSSCount
		}
		return a.Freq < b.Freq
	})
	sp.reindex()
}
