/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"bytes"

	"sapacs/common/wifi"
)

// Element ID of a vendor specific information element
const vendorSpecificIE = 221

// Devices running multi-channel concurrency advertise the channel they'd like
// their neighbors to stay off of using this vendor element:
//	DD 05 00 A0 C6 01 <channel>
var avoidOUI = []byte{0x00, 0xa0, 0xc6}

const (
	avoidTypeMCC = 0x01
	avoidIELen   = 5
)

// ParseAvoidIE walks a buffer of information elements looking for an
// avoid-channel advertisement.  It returns the advertised channel number.
// Truncated elements end the walk.
func ParseAvoidIE(ies []byte) (int, bool) {
	for len(ies) >= 2 {
		id, l := ies[0], int(ies[1])
		if len(ies) < 2+l {
			break
		}
		body := ies[2 : 2+l]
		ies = ies[2+l:]

		if id != vendorSpecificIE || l < avoidIELen {
			continue
		}
		if !bytes.Equal(body[:3], avoidOUI) || body[3] != avoidTypeMCC {
			continue
		}
		if body[4] == 0 {
			continue
		}
		return int(body[4]), true
	}
	return 0, false
}

// BuildAvoidIE returns the element advertising the channel.
func BuildAvoidIE(channel int) []byte {
	ie := []byte{vendorSpecificIE, avoidIELen}
	ie = append(ie, avoidOUI...)
	return append(ie, avoidTypeMCC, byte(channel))
}

// The advertised channel is a legacy channel number, so it can only name a 2.4
// or 5GHz channel.
func avoidFreq(channel int) int {
	if channel <= 14 {
		return wifi.ChannelToFreq(wifi.LoBand, channel)
	}
	return wifi.ChannelToFreq(wifi.HiBand, channel)
}

// avoidFreqs returns the frequencies to put on the avoidance list for an
// advertised channel: the channel itself and, in 2.4GHz, the channels on
// either side of it.
func avoidFreqs(channel int) []int {
	freqs := []int{avoidFreq(channel)}
	if channel <= 14 {
		for _, n := range []int{channel - 1, channel + 1} {
			if n >= 1 && n <= 14 {
				freqs = append(freqs, avoidFreq(n))
			}
		}
	}
	return freqs
}
