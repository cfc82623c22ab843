/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package apscan collects the BSSes seen by 'iw dev <iface> scan' and turns
// them into ACS scan observations.
package apscan

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sapacs/ap_common/acs"
	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultIwCmd is the iw binary used when a Scanner doesn't name one.
const DefaultIwCmd = "/sbin/iw"

// ScannedAP carries information gathered when scanning for APs
type ScannedAP struct {
	Mac      string
	SSID     string
	Mode     string
	Freq     int
	Channel  int
	Width    int
	Strength int
	LastSeen time.Duration

	// The 40MHz secondary channel, and the bonded channel centers in MHz
	Secondary       int
	SecondaryOffset int
	Center0         int
	Center1         int

	// Vendor specific elements, re-encoded as raw IEs
	IEs []byte
}

var (
	octet   = `[[:xdigit:]][[:xdigit:]]`
	macAddr = octet + `:` + octet + `:` + octet + `:` +
		octet + `:` + octet + `:` + octet

	scanSplitRE = regexp.MustCompile(`(?m)^BSS`)

	// BSS 98:1e:19:20:79:df(on wlan0)
	bssMacRE = regexp.MustCompile(`^BSS (` + macAddr + `)`)

	// freq: 5180
	// freq: 5180.0
	bssFreqRE = regexp.MustCompile(`\sfreq: ([\d]+)`)

	// signal: -84.00 dBm
	bssSignalRE = regexp.MustCompile(`\ssignal: ([-|\.|\d]+)\sdBm`)

	// last seen: 360 ms ago
	bssSeenRE = regexp.MustCompile(`\slast seen: ([\d]+) ms ago`)

	// SSID: MySpectrumWiFid8-5G
	bssSSIDRE = regexp.MustCompile(`\sSSID: (.+)`)

	// * primary channel: 149
	bssChanRE = regexp.MustCompile(`\s\* primary channel: ([\d]+)`)

	// HT capabilities:
	bssHTRE = regexp.MustCompile(`\s+HT capabilities:`)

	// VHT capabilities:
	bssVHTRE = regexp.MustCompile(`\s+VHT capabilities:`)

	// * channel width: 1 (80 MHz)
	bssChanWidthRE = regexp.MustCompile(`\* channel width: \d+ \(([\d]+) MHz\)`)

	// * center freq segment 1: 42
	bssSeg1RE = regexp.MustCompile(`\* center freq segment 1: ([\d]+)`)

	// * center freq segment 2: 50
	bssSeg2RE = regexp.MustCompile(`\* center freq segment 2: ([\d]+)`)

	// * secondary channel offset: above
	// * secondary channel offset: no secondary
	bssSecondaryRE = regexp.MustCompile(`\* secondary channel offset: ([\S]+)`)

	// Vendor specific: OUI 00:a0:c6, data: 01 06
	bssVendorRE = regexp.MustCompile(`Vendor specific: OUI (` + octet +
		`:` + octet + `:` + octet + `), data:((?: ` + octet + `)*)`)
)

func getFloatRE(data string, re *regexp.Regexp) float64 {
	var rval float64

	r := re.FindStringSubmatch(data)
	if len(r) > 1 {
		rval, _ = strconv.ParseFloat(r[1], 64)
	}
	return rval
}

func getIntRE(data string, re *regexp.Regexp) int {
	var rval int

	r := re.FindStringSubmatch(data)
	if len(r) > 1 {
		rval, _ = strconv.Atoi(r[1])
	}
	return rval
}

func getStringRE(data string, re *regexp.Regexp) string {
	var rval string

	r := re.FindStringSubmatch(data)
	if len(r) > 1 {
		rval = r[1]
	}
	return rval
}

// iw renders vendor elements it doesn't understand as hex.  Rebuild the raw
// element so the ACS code sees what was in the beacon.
func parseVendorIEs(data string) []byte {
	var ies []byte

	for _, m := range bssVendorRE.FindAllStringSubmatch(data, -1) {
		hexed := strings.Replace(m[1], ":", "", -1) +
			strings.Replace(m[2], " ", "", -1)
		body, err := hex.DecodeString(hexed)
		if err != nil || len(body) > 255 {
			continue
		}
		ies = append(ies, 221, byte(len(body)))
		ies = append(ies, body...)
	}
	return ies
}

// The VHT operation element gives centers as channel numbers.  A second
// segment 8 channels from the first marks a 160MHz channel.
func (ap *ScannedAP) setVHT(data string) {
	band := wifi.BandOf(ap.Freq)
	seg1 := getIntRE(data, bssSeg1RE)
	seg2 := getIntRE(data, bssSeg2RE)

	ap.Width = getIntRE(data, bssChanWidthRE)
	if ap.Width < wifi.Width80 || seg1 == 0 {
		// "0 (20 or 40 MHz)" defers to the HT operation element
		ap.Width = 0
		return
	}

	ap.Center0 = wifi.ChannelToFreq(band, seg1)
	if seg2 != 0 {
		d := seg2 - seg1
		if d == 8 || d == -8 {
			ap.Width = wifi.Width160
			ap.Center1 = wifi.ChannelToFreq(band, seg2)
		}
	}
}

func parseOneBSS(data string) *ScannedAP {
	ap := ScannedAP{
		Mac:      getStringRE(data, bssMacRE),
		SSID:     getStringRE(data, bssSSIDRE),
		Freq:     getIntRE(data, bssFreqRE),
		Strength: int(getFloatRE(data, bssSignalRE)),
		Channel:  int(getIntRE(data, bssChanRE)),
		IEs:      parseVendorIEs(data),
	}
	if ap.Channel == 0 {
		ap.Channel = wifi.FreqToChannel(ap.Freq)
	}

	ht := bssHTRE.FindString(data) != ""
	vht := bssVHTRE.FindString(data) != ""
	secondary := getStringRE(data, bssSecondaryRE)
	if wifi.Is24(ap.Freq) || (ap.Freq == 0 && ap.Channel < 32) {
		ap.Mode = "b/g"
	} else {
		ap.Mode = "a"
	}
	if vht {
		ap.Mode = "ac"
	} else if ht {
		ap.Mode += "/n"
	}

	if vht {
		ap.setVHT(data)
	}
	if ap.Width == 0 {
		switch secondary {
		case "above":
			ap.Width = 40
			ap.Secondary = ap.Channel + 4
			ap.SecondaryOffset = wifi.SecondaryAbove
		case "below":
			ap.Width = 40
			ap.Secondary = ap.Channel - 4
			ap.SecondaryOffset = wifi.SecondaryBelow
		default:
			ap.Width = 20
		}
	}

	d := getIntRE(data, bssSeenRE)
	ap.LastSeen = time.Duration(d) * time.Millisecond

	return &ap
}

func parseIwOutput(data string) []*ScannedAP {
	// Split the output from the 'iw dev <iface> scan' into per-BSS stanzas
	all := make([]string, 0)

	a := scanSplitRE.FindAllStringSubmatchIndex(data, -1)

	for i, s := range a {
		var end int
		if i < len(a)-1 {
			end = a[i+1][0]
		} else {
			end = len(data)
		}
		all = append(all, data[s[0]:end])
	}

	// parse each of the stanzas
	aps := make([]*ScannedAP, 0)
	for _, bss := range all {
		aps = append(aps, parseOneBSS(bss))
	}

	return aps
}

// ParseScan parses the output of 'iw dev <iface> scan'.
func ParseScan(data string) []*ScannedAP {
	return parseIwOutput(data)
}

// Observation converts a scanned AP into its ACS form.
func (ap *ScannedAP) Observation() acs.ScanObservation {
	obs := acs.ScanObservation{
		BSSID:           ap.Mac,
		SSID:            ap.SSID,
		Freq:            ap.Freq,
		RSSI:            ap.Strength,
		Width:           ap.Width,
		SecondaryOffset: ap.SecondaryOffset,
		CenterFreq0:     ap.Center0,
		CenterFreq1:     ap.Center1,
		IEs:             ap.IEs,
	}
	if obs.Width == 20 {
		obs.Width = 0
	}
	return obs
}

// Observations converts a full scan, skipping entries whose frequency
// couldn't be determined.
func Observations(aps []*ScannedAP) []acs.ScanObservation {
	obs := make([]acs.ScanObservation, 0, len(aps))
	for _, ap := range aps {
		if ap.Freq != 0 {
			obs = append(obs, ap.Observation())
		}
	}
	return obs
}

// Scanner runs scans on a single interface.
type Scanner struct {
	Iface string
	IwCmd string
	Log   *zap.SugaredLogger
}

// Scan will use the Scanner's interface to scan for nearby APs.  It returns
// a slice of ScannedAP structs containing per-AP information about each it
// found.
func (s *Scanner) Scan(ctx context.Context) ([]*ScannedAP, error) {
	iw := s.IwCmd
	if iw == "" {
		iw = DefaultIwCmd
	}

	cmd := exec.CommandContext(ctx, iw, "dev", s.Iface, "scan")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s: %s", s.Iface,
			strings.TrimSpace(string(out)))
	}

	aps := parseIwOutput(string(out))
	if s.Log != nil {
		s.Log.Debugf("scan of %s found %d BSSes", s.Iface, len(aps))
	}
	return aps, nil
}

// Save writes a set of observations to a JSON file.
func Save(fs afero.Fs, path string, obs []acs.ScanObservation) error {
	data, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling scan")
	}
	if err = afero.WriteFile(fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Load reads a set of observations saved by Save.
func Load(fs afero.Fs, path string) ([]acs.ScanObservation, error) {
	var obs []acs.ScanObservation

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err = json.Unmarshal(data, &obs); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return obs, nil
}
