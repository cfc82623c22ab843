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

// ScanObservation is a single BSS seen during the most recent scan.
type ScanObservation struct {
	BSSID string `json:"bssid"`
	SSID  string `json:"ssid,omitempty"`
	Freq  int    `json:"freq"`
	RSSI  int    `json:"rssi"`

	// Operating width, and the bonding details advertised in the HT/VHT
	// operation elements.  For 160MHz channels CenterFreq1 holds the
	// center of the whole channel and CenterFreq0 the center of the half
	// holding the primary; if CenterFreq1 is 0, CenterFreq0 is the center
	// of the whole channel.
	Width           int `json:"width,omitempty"`
	SecondaryOffset int `json:"secondary_offset,omitempty"`
	CenterFreq0     int `json:"center_freq0,omitempty"`
	CenterFreq1     int `json:"center_freq1,omitempty"`

	// Raw information elements from the beacon or probe response
	IEs []byte `json:"ies,omitempty"`
}

// ChannelStatus is the hardware telemetry for one channel.  A zero NoiseFloor
// or CycleCount means that measurement wasn't taken.
type ChannelStatus struct {
	NoiseFloor int `json:"noise_floor"`

	RxClearCount uint64 `json:"rx_clear_count"`
	TxFrameCount uint64 `json:"tx_frame_count"`
	RxFrameCount uint64 `json:"rx_frame_count"`
	CycleCount   uint64 `json:"cycle_count"`

	HasTxPower        bool `json:"has_tx_power"`
	TxPowerRange      int  `json:"tx_power_range"`
	TxPowerThroughput int  `json:"tx_power_throughput"`
}

// ChannelStatusLookup returns cached telemetry for a frequency, if there is
// any.  Absence is normal.
type ChannelStatusLookup interface {
	ChannelStatus(freq int) (ChannelStatus, bool)
}

// StatusMap is a ChannelStatusLookup backed by a map.
type StatusMap map[int]ChannelStatus

// ChannelStatus implements ChannelStatusLookup.
func (m StatusMap) ChannelStatus(freq int) (ChannelStatus, bool) {
	s, ok := m[freq]
	return s, ok
}

// Regulatory describes the channels available in the current regulatory
// domain.  wifi.Domain satisfies it.
type Regulatory interface {
	// Legal 20MHz center frequencies, lowest first
	Channels() []int

	IsDFS(freq int) bool

	// The widest channel, no wider than 'width', that can be built
	// around the primary
	Bond(freq, width int) wifi.Bond
}

// NOL answers whether a frequency is on the DFS non-occupancy list.
type NOL interface {
	InNOL(freq int) bool
}

// FreqPolicy lets the radio's concurrency manager veto frequencies.
type FreqPolicy interface {
	Allowed(freq int) bool
}
