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

// A BSS raises the apparent signal level of the channels around its own.  The
// effect falls off by 10dBm per 5MHz 2.4GHz channel step, out to 4 steps
// (the 20MHz footprint of an OFDM channel).  In 5/6GHz, the effect on the
// other 20MHz members of a bonded channel falls off from 20dBm for the
// adjacent member out to 80dBm for the furthest member of a 160MHz channel.
const (
	bleedStep    = 10
	bleedReach24 = 4
)

type bleed struct {
	freq    int
	penalty int
}

type bandProfile int

const (
	profileNone bandProfile = iota
	profile24
	profile5
	profile6
)

func profileFor(freq int) bandProfile {
	switch wifi.BandOf(freq) {
	case wifi.LoBand:
		return profile24
	case wifi.HiBand:
		return profile5
	case wifi.SixBand:
		return profile6
	}
	return profileNone
}

// bleeds returns the neighboring channels affected by a BSS, and the
// signal penalty applied to each.  The second return is false if the BSS's
// bonding description doesn't hang together.
func (p bandProfile) bleeds(obs *ScanObservation) ([]bleed, bool) {
	switch p {
	case profile24:
		return bleeds24(obs.Freq), true
	case profile5, profile6:
		return bleedsWide(obs)
	}
	return nil, false
}

func bleeds24(freq int) []bleed {
	ch := wifi.FreqToChannel(freq)
	b := make([]bleed, 0, 2*bleedReach24)
	for step := -bleedReach24; step <= bleedReach24; step++ {
		n := ch + step
		if step == 0 || n < 1 || n > 14 {
			continue
		}
		dist := step
		if dist < 0 {
			dist = -dist
		}
		b = append(b, bleed{
			freq:    wifi.ChannelToFreq(wifi.LoBand, n),
			penalty: -bleedStep * dist,
		})
	}
	return b
}

func widePenalty(dist int) int {
	return -bleedStep * (dist + 1)
}

func bleedsWide(obs *ScanObservation) ([]bleed, bool) {
	freq := obs.Freq

	switch obs.Width {
	case 0, wifi.Width20:
		return nil, true

	case wifi.Width40:
		var sec int
		switch obs.SecondaryOffset {
		case wifi.SecondaryAbove:
			sec = freq + 20
		case wifi.SecondaryBelow:
			sec = freq - 20
		default:
			if obs.CenterFreq0 == 0 {
				return nil, false
			}
			sec = 2*obs.CenterFreq0 - freq
		}
		if obs.CenterFreq0 != 0 && 2*obs.CenterFreq0 != freq+sec {
			return nil, false
		}
		if d := sec - freq; d != 20 && d != -20 {
			return nil, false
		}
		return []bleed{{freq: sec, penalty: widePenalty(1)}}, true

	case wifi.Width80, wifi.Width160:
		center := obs.CenterFreq0
		if obs.Width == wifi.Width160 && obs.CenterFreq1 != 0 {
			center = obs.CenterFreq1
		}
		b := wifi.Bond{Width: obs.Width, Center0: center}
		members := b.Members()

		found := false
		for _, m := range members {
			found = found || (m == freq)
		}
		if center == 0 || !found {
			return nil, false
		}

		rval := make([]bleed, 0, len(members)-1)
		for _, m := range members {
			if m == freq {
				continue
			}
			dist := (m - freq) / 20
			if dist < 0 {
				dist = -dist
			}
			rval = append(rval, bleed{freq: m, penalty: widePenalty(dist)})
		}
		return rval, true
	}

	return nil, false
}

// raise folds a signal reading into a channel.  The aggregate only ever goes
// up, and never below MinRSSI.
func (c *Channel) raise(rssi int) {
	rssi = clampRSSI(rssi)
	if rssi > c.RSSI {
		c.RSSI = rssi
	}
	c.BSSCount++
}

// aggregate folds every scan observation into the spectrum, in order.
// Observations on frequencies outside the spectrum, or with inconsistent
// bonding information, are skipped.
func (r *run) aggregate(sp *spectrum, scan []ScanObservation) {
	for i := range scan {
		obs := &scan[i]

		// The request stands even if we can't place the BSS itself
		r.processAvoidIE(sp, obs)

		primary := sp.find(obs.Freq)
		if primary == nil {
			r.log.Debugf("skipping %s on unknown frequency %d",
				obs.BSSID, obs.Freq)
			continue
		}

		bleeds, ok := profileFor(obs.Freq).bleeds(obs)
		if !ok {
			r.log.Debugf("skipping %s: inconsistent %dMHz "+
				"channel at %d (center %d/%d)", obs.BSSID,
				obs.Width, obs.Freq, obs.CenterFreq0,
				obs.CenterFreq1)
			continue
		}

		if primary.Valid {
			primary.raise(obs.RSSI)
		}
		for _, b := range bleeds {
			if n := sp.findValid(b.freq); n != nil {
				n.raise(clampRSSI(obs.RSSI) + b.penalty)
			}
		}
	}
}

func (r *run) processAvoidIE(sp *spectrum, obs *ScanObservation) {
	channel, ok := ParseAvoidIE(obs.IEs)
	if !ok {
		return
	}

	freqs := avoidFreqs(channel)
	r.log.Debugf("%s asks us to avoid channel %d", obs.BSSID, channel)
	if r.avoid != nil {
		for _, f := range freqs {
			if !r.avoid.Add(f) {
				r.log.Warnf("avoidance list full; dropping %s",
					wifi.ChanString(f))
			}
		}
	}

	if c := sp.find(freqs[0]); c != nil {
		c.Weight = avoidedWeight()
		c.Snapshot = c.Weight
	}
}
