/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package wifi describes 802.11 channelization: band names, the mapping
// between channel numbers and center frequencies, and the bonding tables used
// to build 40/80/160MHz channels.
package wifi

import (
	"fmt"
	"strings"
)

// Names of the frequency bands.
const (
	LoBand  = "2.4GHz"
	HiBand  = "5GHz"
	SixBand = "6GHz"
)

// Channel widths, in MHz.
const (
	Width20  = 20
	Width40  = 40
	Width80  = 80
	Width160 = 160
)

// Position of the secondary 20MHz channel of a 40MHz channel, as advertised
// in the HT Operation element.
const (
	SecondaryNone  = 0
	SecondaryAbove = 1
	SecondaryBelow = 3
)

// Frequencies bounding each band, in MHz.
const (
	loBandFirst  = 2412
	loBandLast   = 2484
	hiBandFirst  = 5150
	hiBandLast   = 5895
	sixBandFirst = 5925
	sixBandLast  = 7125

	// Channel 14 is a special case, sitting 12MHz above channel 13.
	Chan14Freq = 2484

	// Dedicated short range communications, reserved for vehicles.
	dsrcFirst = 5850
	dsrcLast  = 5925

	// Weather radar channels (120-128) carry a 10 minute CAC in ETSI
	// regions.
	weatherFirst = 5600
	weatherLast  = 5650
)

// NonOverlap lists the three 2.4GHz channels whose 20MHz footprints don't
// overlap each other.
var NonOverlap = []int{1, 6, 11}

// Widths lists the supported channel widths, narrowest first.
var Widths = []int{Width20, Width40, Width80, Width160}

// FreqToChannel converts a center frequency (MHz) into its channel number.  It
// returns 0 for frequencies outside of the 2.4, 5, and 6GHz bands.
func FreqToChannel(freq int) int {
	switch {
	case freq == Chan14Freq:
		return 14
	case freq >= loBandFirst && freq < loBandLast:
		return (freq - 2407) / 5
	case freq >= hiBandFirst && freq <= hiBandLast:
		return (freq - 5000) / 5
	case freq == 5935:
		// 6GHz channel 2 is the odd one out
		return 2
	case freq > sixBandFirst && freq <= sixBandLast:
		return (freq - 5950) / 5
	}
	return 0
}

// ChannelToFreq converts a channel number within a band into a center
// frequency.  It returns 0 if the band is unknown.
func ChannelToFreq(band string, channel int) int {
	switch band {
	case LoBand:
		if channel == 14 {
			return Chan14Freq
		}
		return 2407 + 5*channel
	case HiBand:
		return 5000 + 5*channel
	case SixBand:
		if channel == 2 {
			return 5935
		}
		return 5950 + 5*channel
	}
	return 0
}

// BandOf returns the name of the band containing the frequency, or "" if it
// isn't a wifi frequency.
func BandOf(freq int) string {
	switch {
	case freq >= loBandFirst && freq <= loBandLast:
		return LoBand
	case freq >= hiBandFirst && freq <= hiBandLast:
		return HiBand
	case freq >= sixBandFirst && freq <= sixBandLast:
		return SixBand
	}
	return ""
}

// Is24 returns true for 2.4GHz frequencies.
func Is24(freq int) bool {
	return BandOf(freq) == LoBand
}

// IsDSRC returns true for frequencies reserved for short range vehicle
// communications.
func IsDSRC(freq int) bool {
	return freq > dsrcFirst && freq < dsrcLast
}

// IsWeather returns true for the frequencies shared with weather radar.
func IsWeather(freq int) bool {
	return freq >= weatherFirst && freq <= weatherLast
}

// IsNonOverlap returns true if a 2.4GHz frequency is one of channels 1, 6, or
// 11.
func IsNonOverlap(freq int) bool {
	if !Is24(freq) {
		return false
	}
	c := FreqToChannel(freq)
	for _, n := range NonOverlap {
		if c == n {
			return true
		}
	}
	return false
}

// ValidWidth returns true if the width is one we know how to construct.
func ValidWidth(width int) bool {
	for _, w := range Widths {
		if w == width {
			return true
		}
	}
	return false
}

// ChanString is used in log messages to render a frequency with its channel
// number, e.g. "5180(36)".
func ChanString(freq int) string {
	return fmt.Sprintf("%d(%d)", freq, FreqToChannel(freq))
}

// FreqList renders a list of frequencies with ChanString.
func FreqList(freqs []int) string {
	s := make([]string, 0, len(freqs))
	for _, f := range freqs {
		s = append(s, ChanString(f))
	}
	return strings.Join(s, ",")
}
