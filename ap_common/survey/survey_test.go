/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package survey

import (
	"context"
	"testing"

	"sapacs/ap_common/acs"

	"github.com/stretchr/testify/require"
)

const sampleDump = `Survey data from wlan0
	frequency:			5180 MHz [in use]
	noise:				-95 dBm
	channel active time:		1000 ms
	channel busy time:		200 ms
	channel receive time:		100 ms
	channel transmit time:		50 ms
Survey data from wlan0
	frequency:			5200 MHz
Survey data from wlan0
	frequency:			5220 MHz
	noise:				-101 dBm
Survey data from wlan0
	frequency:			2412 MHz
	channel active time:		500 ms
	channel busy time:		499 ms
`

func TestParse(t *testing.T) {
	assert := require.New(t)

	m := Parse(sampleDump)
	assert.Len(m, 3)

	assert.Equal(acs.ChannelStatus{
		NoiseFloor:   -95,
		CycleCount:   1000,
		RxClearCount: 200,
		RxFrameCount: 100,
		TxFrameCount: 50,
	}, m[5180])

	_, ok := m.ChannelStatus(5200)
	assert.False(ok)

	st, ok := m.ChannelStatus(5220)
	assert.True(ok)
	assert.Equal(-101, st.NoiseFloor)
	assert.Zero(st.CycleCount)

	st, ok = m.ChannelStatus(2412)
	assert.True(ok)
	assert.Zero(st.NoiseFloor)
	assert.Equal(uint64(499), st.RxClearCount)

	assert.Empty(Parse(""))
}

func TestDumpFailure(t *testing.T) {
	assert := require.New(t)

	_, err := Dump(context.Background(), "/nonexistent/iw", "wlan0")
	assert.Error(err)
}
