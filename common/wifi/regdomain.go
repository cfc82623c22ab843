/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package wifi

import (
	"fmt"
	"sort"
	"strings"
)

// Bond describes the channel that results from bonding a primary 20MHz
// channel to the given width.  For 160MHz channels, Center0 is the center of
// the 80MHz segment containing the primary and Center1 is the center of the
// whole channel, matching the VHT Operation encoding.  For narrower channels
// Center1 is 0.
type Bond struct {
	Width   int
	Center0 int
	Center1 int
}

// Center returns the center frequency of the whole bonded channel.
func (b Bond) Center() int {
	if b.Width == Width160 && b.Center1 != 0 {
		return b.Center1
	}
	return b.Center0
}

// Members returns the center frequencies of each 20MHz channel making up the
// bonded channel, lowest first.
func (b Bond) Members() []int {
	n := b.Width / Width20
	if n < 1 {
		n = 1
	}
	first := b.Center() - 10*(n-1)
	m := make([]int, n)
	for i := range m {
		m[i] = first + 20*i
	}
	return m
}

type chanRange struct {
	first, last int
}

type domainTable struct {
	lo  chanRange
	hi  []chanRange
	six chanRange
	dfs []chanRange
}

// The 5GHz band is divided into blocks, within which bonded channels are
// aligned to the lowest channel of the block.
var hiBlocks = []chanRange{{36, 64}, {100, 144}, {149, 177}}

var domainTables = map[string]domainTable{
	"US": {
		lo:  chanRange{1, 11},
		hi:  []chanRange{{36, 64}, {100, 144}, {149, 165}},
		six: chanRange{1, 233},
		dfs: []chanRange{{52, 64}, {100, 144}},
	},
	"EU": {
		lo:  chanRange{1, 13},
		hi:  []chanRange{{36, 64}, {100, 140}},
		six: chanRange{1, 93},
		dfs: []chanRange{{52, 64}, {100, 140}},
	},
	"JP": {
		lo:  chanRange{1, 14},
		hi:  []chanRange{{36, 64}, {100, 144}},
		dfs: []chanRange{{52, 64}, {100, 144}},
	},
}

var domainAliases = map[string]string{
	"CA": "US",
	"AT": "EU", "BE": "EU", "DE": "EU", "DK": "EU", "ES": "EU",
	"FI": "EU", "FR": "EU", "GB": "EU", "IE": "EU", "IT": "EU",
	"NL": "EU", "NO": "EU", "PT": "EU", "SE": "EU",
}

// Domain is the set of channels usable in a regulatory domain.
type Domain struct {
	Country string

	freqs []int
	legal map[int]bool
	dfs   map[int]bool
}

// Countries returns the regulatory domains with built-in channel tables.
func Countries() []string {
	all := make([]string, 0)
	for c := range domainTables {
		all = append(all, c)
	}
	for c := range domainAliases {
		all = append(all, c)
	}
	sort.Strings(all)
	return all
}

// NewDomain returns the channel table for a two-letter country code.
func NewDomain(country string) (*Domain, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	key := country
	if alias, ok := domainAliases[key]; ok {
		key = alias
	}
	t, ok := domainTables[key]
	if !ok {
		return nil, fmt.Errorf("no channel table for country '%s'",
			country)
	}

	d := &Domain{
		Country: country,
		freqs:   make([]int, 0),
		legal:   make(map[int]bool),
		dfs:     make(map[int]bool),
	}
	add := func(band string, ch int) {
		f := ChannelToFreq(band, ch)
		d.freqs = append(d.freqs, f)
		d.legal[f] = true
	}

	for c := t.lo.first; c > 0 && c <= t.lo.last; c++ {
		add(LoBand, c)
	}
	for _, r := range t.hi {
		for c := r.first; c <= r.last; c += 4 {
			add(HiBand, c)
		}
	}
	for c := t.six.first; c > 0 && c <= t.six.last; c += 4 {
		add(SixBand, c)
	}
	for _, r := range t.dfs {
		for c := r.first; c <= r.last; c += 4 {
			d.dfs[ChannelToFreq(HiBand, c)] = true
		}
	}
	sort.Ints(d.freqs)

	return d, nil
}

// Channels returns the legal 20MHz center frequencies, lowest first.
func (d *Domain) Channels() []int {
	return append([]int(nil), d.freqs...)
}

// IsLegal returns true if the frequency is a legal primary channel.
func (d *Domain) IsLegal(freq int) bool {
	return d.legal[freq]
}

// IsDFS returns true if radar detection is required before transmitting on
// this frequency.
func (d *Domain) IsDFS(freq int) bool {
	return d.dfs[freq]
}

// Bond returns the widest channel no wider than 'width' that can be built
// around the primary frequency.  If no bonded channel can be built, the result
// is the primary's own 20MHz channel.
func (d *Domain) Bond(freq, width int) Bond {
	for w := width; w > Width20; w /= 2 {
		if b, ok := d.bondAt(freq, w); ok {
			return b
		}
	}
	return Bond{Width: Width20, Center0: freq}
}

func (d *Domain) bondAt(freq, width int) (Bond, bool) {
	var b Bond

	if !d.legal[freq] || !ValidWidth(width) {
		return b, false
	}

	band := BandOf(freq)
	ch := FreqToChannel(freq)
	if band == LoBand {
		return d.bond24(freq, ch, width)
	}

	var base int
	if band == HiBand {
		for _, blk := range hiBlocks {
			if ch >= blk.first && ch <= blk.last {
				base = blk.first
			}
		}
	} else if band == SixBand && ch != 2 {
		base = 1
	}
	if base == 0 {
		return b, false
	}

	n := width / Width20
	idx := (ch - base) / 4
	first := base + (idx/n)*n*4
	center := first + (n-1)*2

	for i := 0; i < n; i++ {
		if !d.legal[ChannelToFreq(band, first+4*i)] {
			return b, false
		}
	}

	b.Width = width
	b.Center0 = ChannelToFreq(band, center)
	if width == Width160 {
		// The 80MHz half that holds the primary
		half := first + 6
		if ch >= first+16 {
			half = first + 22
		}
		b.Center1 = b.Center0
		b.Center0 = ChannelToFreq(band, half)
	}

	return b, true
}

// 2.4GHz channels are 5MHz apart, so a 40MHz channel is made of a primary
// and a secondary 4 channels above or below it.
func (d *Domain) bond24(freq, ch, width int) (Bond, bool) {
	var b Bond

	if width != Width40 || ch == 14 {
		return b, false
	}

	if ch+4 <= 13 && d.legal[freq+20] {
		b = Bond{Width: Width40, Center0: freq + 10}
	} else if ch-4 >= 1 && d.legal[freq-20] {
		b = Bond{Width: Width40, Center0: freq - 10}
	} else {
		return b, false
	}
	return b, true
}
