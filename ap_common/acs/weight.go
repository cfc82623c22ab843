/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

// scaleLinear maps v from [lo, hi] onto [0, local], clamped.
func scaleLinear(local, v, lo, hi int) int {
	v = clampInt(v, lo, hi)
	return local * (v - lo) / (hi - lo)
}

func (r *run) rssiComponent(c *Channel) int {
	rssi := c.RSSI
	if r.cfg.inPCL(c.Freq) {
		rssi -= PCLRSSIDiscount
	}
	return scaleLinear(r.cfg.local[metricRSSI], rssi, MinRSSI, MaxRSSI)
}

func (r *run) countComponent(c *Channel) int {
	return scaleLinear(r.cfg.local[metricBSSCount], c.BSSCount,
		MinCount, MaxCount)
}

// statusComponents scores the hardware telemetry for the channel.  Any
// measurement we don't have is charged at its full local weight.
func (r *run) statusComponents(freq int) int {
	local := &r.cfg.local

	var st ChannelStatus
	var ok bool
	if r.status != nil {
		st, ok = r.status.ChannelStatus(freq)
	}

	noise := local[metricNoiseFloor]
	if ok && st.NoiseFloor != 0 {
		noise = scaleLinear(noise, st.NoiseFloor,
			MinNoiseFloor, MaxNoiseFloor)
	}

	free := local[metricChannelFree]
	if ok && st.CycleCount != 0 {
		busy := int64(st.RxClearCount) - int64(st.TxFrameCount) -
			int64(st.RxFrameCount)
		if busy < 0 {
			busy = 0
		}
		v := int64(free) * busy / int64(st.CycleCount)
		free = clampInt(int(v), 0, free)
	}

	txRange := local[metricTxPowerRange]
	txTput := local[metricTxPowerThroughput]
	if ok && st.HasTxPower {
		txRange = txPowerScore(txRange, st.TxPowerRange)
		txTput = txPowerScore(txTput, st.TxPowerThroughput)
	}

	return noise + free + txRange + txTput
}

// More available power is better, so the score falls as power rises.
func txPowerScore(local, power int) int {
	power = clampInt(power, MinTxPower, MaxTxPower)
	return local * (MaxTxPower - power) / (MaxTxPower - MinTxPower)
}

// normalize pushes a weight part of the way towards WeightMax.  A pct of 100
// leaves it alone.
func normalize(weight, pct int) int {
	weight += (WeightMax - weight) * (100 - pct) / 100
	return clampInt(weight, 0, WeightMax)
}

func (r *run) channelWeight(c *Channel) int {
	sum := r.rssiComponent(c) + r.countComponent(c) +
		r.statusComponents(c.Freq)
	w := clampInt(WeightScale*sum, 0, WeightMax)

	if pct, ok := r.cfg.normalizePct(c.Freq, r.reg.IsDFS(c.Freq)); ok {
		w = normalize(w, pct)
	}
	return w
}

// computeWeights assigns every eligible channel its weight.  Channels
// marked by an avoid-channel advertisement keep their marker.
func (r *run) computeWeights(sp *spectrum) {
	for i := range sp.chans {
		c := &sp.chans[i]
		if !c.Valid || c.Weight.Avoided() {
			c.Snapshot = c.Weight
			continue
		}

		c.Weight = NewWeight(r.channelWeight(c))
		c.Snapshot = c.Weight
	}
}
