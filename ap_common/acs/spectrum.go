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

	"go.uber.org/zap"
)

// ineligible returns the reason a frequency may not be used, or "" if it may.
func (r *run) ineligible(freq int) string {
	cfg := r.cfg

	switch {
	case !cfg.inRange(freq):
		return "outside ACS range"
	case !cfg.allowed(freq):
		return "not in channel list"
	case r.nol != nil && r.nol.InNOL(freq):
		return "in NOL"
	case r.reg.IsDFS(freq) && !cfg.dfsAllowed():
		return "DFS not allowed"
	case r.policy != nil && !r.policy.Allowed(freq):
		return "vetoed by concurrency policy"
	case freq == wifi.Chan14Freq && cfg.params.Mode != "11b":
		return "channel 14 is 802.11b only"
	case wifi.IsDSRC(freq):
		return "DSRC"
	case cfg.params.SkipWeather && wifi.IsWeather(freq):
		return "weather radar channel"
	}
	return ""
}

// initSpectrum builds one entry per regulatory channel.  Every entry starts
// with the worst possible weight and the weakest possible signal.
func (r *run) initSpectrum() *spectrum {
	freqs := append([]int(nil), r.reg.Channels()...)
	sort.Ints(freqs)
	sp := newSpectrum(len(freqs))

	for _, freq := range freqs {
		if sp.find(freq) != nil {
			continue
		}

		c := Channel{
			Freq:     freq,
			RSSI:     MinRSSI,
			Weight:   NewWeight(WeightMax),
			Snapshot: NewWeight(WeightMax),
		}
		if why := r.ineligible(freq); why != "" {
			r.log.Debugw("channel ineligible",
				zap.String("chan", wifi.ChanString(freq)),
				zap.String("reason", why))
		} else {
			c.Valid = true
		}
		sp.add(c)
	}

	return sp
}
