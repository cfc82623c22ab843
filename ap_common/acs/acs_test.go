/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"testing"

	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	chans24   = []int{2412, 2417, 2422, 2427, 2432, 2437, 2442, 2447, 2452, 2457, 2462}
	nonOver24 = []int{2412, 2437, 2462}
)

func newRequest(t *testing.T, p Params, scan ...ScanObservation) *Request {
	cfg, err := NewWeightConfig(p)
	require.NoError(t, err)
	reg, err := wifi.NewDomain("US")
	require.NoError(t, err)

	return &Request{
		Config:     cfg,
		Regulatory: reg,
		Scan:       scan,
		Log:        zaptest.NewLogger(t).Sugar(),
	}
}

func mustSelect(t *testing.T, req *Request) *Selection {
	sel, err := SelectChannel(req)
	require.NoError(t, err)
	require.NotNil(t, sel)
	return sel
}

func findCandidate(sel *Selection, freq int) *Channel {
	for i := range sel.Candidates {
		if sel.Candidates[i].Freq == freq {
			return &sel.Candidates[i]
		}
	}
	return nil
}

func TestEmptyScan(t *testing.T) {
	assert := require.New(t)

	sel := mustSelect(t, newRequest(t, Params{}))
	assert.Equal(2412, sel.Freq)
	assert.Equal(20, sel.Width)
	assert.Zero(sel.SecondaryFreq)
	assert.Zero(sel.Weight)
	assert.NotEmpty(sel.RunID)
	assert.Equal(wifi.Bond{Width: 20, Center0: 2412}, sel.Bond)

	// Everything starts out equal
	for _, c := range sel.Candidates {
		assert.Equal(MinRSSI, c.RSSI)
		assert.Zero(c.BSSCount)
		assert.Zero(c.Weight.Value())
	}

	// Limited to 5GHz, the lowest channel wins
	sel = mustSelect(t, newRequest(t, Params{StartFreq: 5000}))
	assert.Equal(5180, sel.Freq)
}

func TestStrongBSS24(t *testing.T) {
	assert := require.New(t)

	req := newRequest(t, Params{Channels: chans24},
		ScanObservation{BSSID: "a", Freq: 2437, RSSI: -30})
	sel := mustSelect(t, req)

	six := findCandidate(sel, 2437)
	assert.Equal(1, six.BSSCount)
	assert.Equal(-30, six.RSSI)
	assert.Equal(2412, sel.Freq)

	one := findCandidate(sel, 2412)
	eleven := findCandidate(sel, 2462)
	assert.True(one.Weight.Less(six.Weight))
	assert.True(eleven.Weight.Less(six.Weight))
	for ch := 2; ch <= 10; ch++ {
		assert.Equal(1, findCandidate(sel, chanFreq(ch)).BSSCount)
	}

	// With the overlapping channels unavailable, 11 is next best
	req.Config, _ = NewWeightConfig(Params{Channels: []int{2437, 2462}})
	sel = mustSelect(t, req)
	assert.Equal(2462, sel.Freq)
}

func TestOverlap24(t *testing.T) {
	assert := require.New(t)

	scan := []ScanObservation{
		{BSSID: "a", Freq: 2412, RSSI: -20},
		{BSSID: "b", Freq: 2437, RSSI: -20},
		{BSSID: "c", Freq: 2462, RSSI: -20},
	}

	// The channels in between only see bleed from their neighbors, so
	// they look quieter than the non-overlapping channels.
	req := newRequest(t, Params{Channels: chans24}, scan...)
	sel := mustSelect(t, req)
	assert.True(wifi.IsNonOverlap(sel.Freq))

	req = newRequest(t, Params{Channels: chans24, AllowOverlap24: true},
		scan...)
	sel = mustSelect(t, req)
	assert.False(wifi.IsNonOverlap(sel.Freq))
}

func TestMissingPartner40(t *testing.T) {
	assert := require.New(t)

	req := newRequest(t, Params{
		Width:    40,
		Channels: []int{5180, 5220, 5240},
	})
	sel := mustSelect(t, req)

	lone := findCandidate(sel, 5180)
	assert.True(lone.Finalized)
	assert.True(lone.Weight.Excluded())
	assert.Equal(2*WeightMax, lone.Weight.Value())

	assert.Equal(5220, sel.Freq)
	assert.Equal(40, sel.Width)
	assert.Equal(wifi.Bond{Width: 40, Center0: 5230}, sel.Bond)
	assert.Zero(sel.SecondaryFreq)
}

func TestDFSDisabled(t *testing.T) {
	assert := require.New(t)

	scan := []ScanObservation{
		{BSSID: "a", Freq: 5180, RSSI: -30},
	}

	req := newRequest(t, Params{
		DFSPolicy: DFSDisabled,
		DFSMaster: true,
		Channels:  []int{5180, 5260},
	}, scan...)
	sel := mustSelect(t, req)
	assert.Equal(5180, sel.Freq)
	assert.Nil(findCandidate(sel, 5260))

	// Enabled, but we can't do radar detection
	req.Config, _ = NewWeightConfig(Params{
		DFSPolicy: DFSEnabled,
		Channels:  []int{5180, 5260},
	})
	sel = mustSelect(t, req)
	assert.Equal(5180, sel.Freq)

	req.Config, _ = NewWeightConfig(Params{
		DFSPolicy: DFSEnabled,
		DFSMaster: true,
		Channels:  []int{5180, 5260},
	})
	sel = mustSelect(t, req)
	assert.Equal(5260, sel.Freq)
}

func TestDFSDeprioritized(t *testing.T) {
	assert := require.New(t)

	scan := []ScanObservation{
		{BSSID: "a", Freq: 5180, RSSI: -80},
	}

	// A weak BSS on 36 is still better than a heavily penalized DFS
	// channel
	req := newRequest(t, Params{
		DFSPolicy:       DFSDeprioritized,
		DFSMaster:       true,
		DFSNormalizePct: 10,
		Channels:        []int{5180, 5260},
	}, scan...)
	sel := mustSelect(t, req)
	assert.Equal(5180, sel.Freq)

	req.Config, _ = NewWeightConfig(Params{
		DFSPolicy:       DFSDeprioritized,
		DFSMaster:       true,
		DFSNormalizePct: 100,
		Channels:        []int{5180, 5260},
	})
	sel = mustSelect(t, req)
	assert.Equal(5260, sel.Freq)
}

func TestAvoidIE(t *testing.T) {
	assert := require.New(t)

	avoid := NewAvoidanceList()
	req := newRequest(t, Params{Channels: nonOver24},
		ScanObservation{BSSID: "a", Freq: 2412, RSSI: -20},
		ScanObservation{BSSID: "b", Freq: 2462, RSSI: -20,
			IEs: BuildAvoidIE(6)},
	)
	req.Avoid = avoid
	sel := mustSelect(t, req)

	// 6 is the quietest channel, but we've been asked to stay off it
	six := findCandidate(sel, 2437)
	assert.True(six.Weight.Avoided())
	assert.Equal(WeightMax+1, six.Weight.Value())
	assert.Equal(2412, sel.Freq)
	assert.Equal([]int{2437, 2432, 2442}, avoid.Snapshot())

	// The list outlives the run
	avoid.Add(2412)
	req.Scan = nil
	sel = mustSelect(t, req)
	assert.Equal(2462, sel.Freq)

	avoid.Add(2462)
	_, err := SelectChannel(req)
	assert.Error(err)
	assert.Equal(ErrNotSelected, errors.Cause(err))

	avoid.Reset()
	sel = mustSelect(t, req)
	assert.Equal(2412, sel.Freq)
}

func TestPCL(t *testing.T) {
	assert := require.New(t)

	req := newRequest(t, Params{
		Channels: []int{5180, 5200},
		PCL:      []int{5200},
	})
	sel := mustSelect(t, req)
	assert.Equal(5200, sel.Freq)
	assert.Equal(5180, sel.Candidates[0].Freq)

	// A PCL channel that is worse doesn't take over
	req.Scan = []ScanObservation{
		{BSSID: "a", Freq: 5200, RSSI: -50},
	}
	sel = mustSelect(t, req)
	assert.Equal(5180, sel.Freq)

	// Even a tied PCL channel must satisfy every other filter
	req.Scan = nil
	req.Avoid = NewAvoidanceList()
	req.Avoid.Add(5200)
	sel = mustSelect(t, req)
	assert.Equal(5180, sel.Freq)
}

func TestHT40on24(t *testing.T) {
	assert := require.New(t)

	// See TestCollapse24 for the weights behind this
	req := newRequest(t, Params{Width: 40, Channels: chans24},
		ScanObservation{BSSID: "a", Freq: 2412, RSSI: -20})
	sel := mustSelect(t, req)

	assert.Equal(2437, sel.Freq)
	assert.Equal(2457, sel.SecondaryFreq)
	assert.Equal(40, sel.Width)
	assert.Equal(wifi.Bond{Width: 40, Center0: 2447}, sel.Bond)

	req.Scan = nil
	sel = mustSelect(t, req)
	assert.Equal(2412, sel.Freq)
	assert.Equal(2432, sel.SecondaryFreq)
}

func TestWideSelection(t *testing.T) {
	testCases := []struct {
		name   string
		params Params
		freq   int
		width  int
		bond   wifi.Bond
	}{
		{
			name:   "80",
			params: Params{Width: 80, StartFreq: 5000},
			freq:   5180,
			width:  80,
			bond:   wifi.Bond{Width: 80, Center0: 5210},
		},
		{
			name: "160",
			params: Params{Width: 160, StartFreq: 5000,
				DFSPolicy: DFSEnabled, DFSMaster: true},
			freq:  5180,
			width: 160,
			bond: wifi.Bond{Width: 160, Center0: 5210,
				Center1: 5250},
		},
		{
			name:   "unbondable",
			params: Params{Width: 80, Channels: []int{5825}},
			freq:   5825,
			width:  20,
			bond:   wifi.Bond{Width: 20, Center0: 5825},
		},
		{
			name:   "6GHz",
			params: Params{Width: 80, StartFreq: 5925},
			freq:   5955,
			width:  80,
			bond:   wifi.Bond{Width: 80, Center0: 5985},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)

			sel := mustSelect(t, newRequest(t, tc.params))
			assert.Equal(tc.freq, sel.Freq)
			assert.Equal(tc.width, sel.Width)
			assert.Equal(tc.bond, sel.Bond)
		})
	}
}

func TestBondedWinner(t *testing.T) {
	assert := require.New(t)

	// Busy 36-48 leaves 149-161 as the best 80MHz channel
	req := newRequest(t, Params{Width: 80, StartFreq: 5000, EndFreq: 5900},
		ScanObservation{BSSID: "a", Freq: 5200, RSSI: -40, Width: 80,
			CenterFreq0: 5210},
	)
	sel := mustSelect(t, req)
	assert.Equal(5745, sel.Freq)
	assert.Equal(wifi.Bond{Width: 80, Center0: 5775}, sel.Bond)

	busy := findCandidate(sel, 5200)
	assert.Equal(4*WeightMax, busy.Weight.Value())
}

func TestNotSelected(t *testing.T) {
	reg, err := wifi.NewDomain("US")
	require.NoError(t, err)
	cfg, err := NewWeightConfig(Params{})
	require.NoError(t, err)
	nothing, err := NewWeightConfig(Params{Channels: []int{2467}})
	require.NoError(t, err)

	testCases := []struct {
		name string
		req  *Request
	}{
		{"nilRequest", nil},
		{"noConfig", &Request{Regulatory: reg}},
		{"noRegulatory", &Request{Config: cfg}},
		{"emptySpectrum", &Request{Config: cfg,
			Regulatory: &fakeReg{}}},
		{"emptyAllowList", &Request{Config: nothing, Regulatory: reg}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)

			sel, err := SelectChannel(tc.req)
			assert.Nil(sel)
			assert.Error(err)
			assert.Equal(ErrNotSelected, errors.Cause(err))
		})
	}
}

func TestDeterminism(t *testing.T) {
	assert := require.New(t)

	scan := []ScanObservation{
		{BSSID: "a", Freq: 2437, RSSI: -40},
		{BSSID: "b", Freq: 5180, RSSI: -50, Width: 80, CenterFreq0: 5210},
		{BSSID: "c", Freq: 5745, RSSI: -60, Width: 40,
			SecondaryOffset: wifi.SecondaryAbove},
		{BSSID: "d", Freq: 5955, RSSI: -70},
	}
	status := StatusMap{
		5180: {NoiseFloor: -95, CycleCount: 100, RxClearCount: 20},
	}

	var first *Selection
	for i := 0; i < 5; i++ {
		req := newRequest(t, Params{
			Weights: Weights{RSSI: 5, BSSCount: 5, NoiseFloor: 3,
				ChannelFree: 3, TxPowerRange: 1, TxPowerThroughput: 1},
			Width: 40,
		}, scan...)
		req.Status = status
		sel := mustSelect(t, req)
		if first == nil {
			first = sel
			continue
		}

		assert.NotEqual(first.RunID, sel.RunID)
		assert.Equal(first.Freq, sel.Freq)
		assert.Equal(first.Weight, sel.Weight)
		assert.Equal(first.Candidates, sel.Candidates)
	}
}

func TestSelectionPolicy(t *testing.T) {
	assert := require.New(t)

	// NOL and concurrency vetoes are honored end to end
	req := newRequest(t, Params{StartFreq: 5000, EndFreq: 5900})
	req.NOL = fakeNOL{5180: true}
	req.Policy = vetoPolicy{5200: true}
	sel := mustSelect(t, req)
	assert.Equal(5220, sel.Freq)

	// Whatever happens, the answer is on the allow-list and off the
	// avoidance list
	allow := []int{2412, 2437, 5180, 5745}
	req = newRequest(t, Params{Channels: allow},
		ScanObservation{BSSID: "a", Freq: 2412, RSSI: -30},
		ScanObservation{BSSID: "b", Freq: 5180, RSSI: -70,
			IEs: BuildAvoidIE(149)},
	)
	req.Avoid = NewAvoidanceList()
	req.Avoid.Add(2437)
	sel = mustSelect(t, req)
	assert.Contains(allow, sel.Freq)
	assert.False(req.Avoid.Contains(sel.Freq))
	assert.Equal(5180, sel.Freq)
}
