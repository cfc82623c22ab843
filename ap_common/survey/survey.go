/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package survey turns the per-channel statistics gathered by
// 'iw dev <iface> survey dump' into the telemetry used to weight channels.
package survey

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"sapacs/ap_common/acs"

	"github.com/pkg/errors"
)

var (
	stanzaSplitRE = regexp.MustCompile(`(?m)^Survey data from`)

	// frequency:			5180 MHz [in use]
	freqRE = regexp.MustCompile(`\sfrequency:\s+([\d]+)`)

	// noise:				-95 dBm
	noiseRE = regexp.MustCompile(`\snoise:\s+(-?[\d]+) dBm`)

	// channel active time:		1000 ms
	activeRE = regexp.MustCompile(`\schannel active time:\s+([\d]+) ms`)

	// channel busy time:		200 ms
	busyRE = regexp.MustCompile(`\schannel busy time:\s+([\d]+) ms`)

	// channel receive time:		100 ms
	rxRE = regexp.MustCompile(`\schannel receive time:\s+([\d]+) ms`)

	// channel transmit time:		50 ms
	txRE = regexp.MustCompile(`\schannel transmit time:\s+([\d]+) ms`)
)

func getInt(data string, re *regexp.Regexp) int {
	var rval int

	if r := re.FindStringSubmatch(data); len(r) > 1 {
		rval, _ = strconv.Atoi(r[1])
	}
	return rval
}

func getUint(data string, re *regexp.Regexp) uint64 {
	var rval uint64

	if r := re.FindStringSubmatch(data); len(r) > 1 {
		rval, _ = strconv.ParseUint(r[1], 10, 64)
	}
	return rval
}

// The busy time counts everything that kept the medium from being clear,
// including our own traffic, so it plays the part of the rx-clear counter.
func parseStanza(data string) (int, acs.ChannelStatus) {
	st := acs.ChannelStatus{
		NoiseFloor:   getInt(data, noiseRE),
		CycleCount:   getUint(data, activeRE),
		RxClearCount: getUint(data, busyRE),
		RxFrameCount: getUint(data, rxRE),
		TxFrameCount: getUint(data, txRE),
	}
	return getInt(data, freqRE), st
}

// Parse converts the output of 'iw dev <iface> survey dump' into a lookup
// table.  Channels the radio hasn't visited are left out.
func Parse(data string) acs.StatusMap {
	m := make(acs.StatusMap)

	idx := stanzaSplitRE.FindAllStringIndex(data, -1)
	for i, s := range idx {
		end := len(data)
		if i < len(idx)-1 {
			end = idx[i+1][0]
		}

		freq, st := parseStanza(data[s[0]:end])
		if freq == 0 || (st.NoiseFloor == 0 && st.CycleCount == 0) {
			continue
		}
		m[freq] = st
	}
	return m
}

// Dump runs 'iw dev <iface> survey dump' and parses the result.
func Dump(ctx context.Context, iw, iface string) (acs.StatusMap, error) {
	out, err := exec.CommandContext(ctx, iw, "dev", iface, "survey",
		"dump").CombinedOutput()
	if err != nil {
		return nil, errors.Wrapf(err, "survey of %s failed: %s", iface,
			strings.TrimSpace(string(out)))
	}
	return Parse(string(out)), nil
}
