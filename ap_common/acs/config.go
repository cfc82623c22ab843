/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acs

import (
	"fmt"
	"sort"
	"strings"

	"sapacs/common/wifi"

	"github.com/pkg/errors"
)

// DFSPolicy controls whether radar-detection channels may be chosen.
type DFSPolicy int

// DFS policies
const (
	DFSDisabled DFSPolicy = iota
	DFSEnabled
	DFSDeprioritized
)

var dfsPolicyNames = map[DFSPolicy]string{
	DFSDisabled:      "disabled",
	DFSEnabled:       "enabled",
	DFSDeprioritized: "deprioritized",
}

func (p DFSPolicy) String() string {
	if s, ok := dfsPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("DFSPolicy(%d)", int(p))
}

// ParseDFSPolicy converts a policy name into a DFSPolicy.
func ParseDFSPolicy(s string) (DFSPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range dfsPolicyNames {
		if name == s {
			return p, nil
		}
	}
	return DFSDisabled, errors.Errorf("unknown DFS policy '%s'", s)
}

// Operating modes.  Channel 14 may only be used by 802.11b.
var validModes = map[string]bool{
	"":     true,
	"11b":  true,
	"11g":  true,
	"11n":  true,
	"11ac": true,
	"11ax": true,
}

// The six sub-metrics contributing to a channel's weight
const (
	metricRSSI = iota
	metricBSSCount
	metricNoiseFloor
	metricChannelFree
	metricTxPowerRange
	metricTxPowerThroughput
	numMetrics
)

var metricNames = [numMetrics]string{
	"rssi", "bss_count", "noise_floor", "channel_free",
	"tx_power_range", "tx_power_throughput",
}

// Weights holds the relative priority, 0-15, of each sub-metric.  They are
// redistributed proportionally onto WeightAmountLocal when the config is
// built, so only their ratios matter.
type Weights struct {
	RSSI              int `yaml:"rssi"`
	BSSCount          int `yaml:"bss_count"`
	NoiseFloor        int `yaml:"noise_floor"`
	ChannelFree       int `yaml:"channel_free"`
	TxPowerRange      int `yaml:"tx_power_range"`
	TxPowerThroughput int `yaml:"tx_power_throughput"`
}

// DefaultWeights scores channels on signal strength and BSS count alone.
var DefaultWeights = Weights{RSSI: 15, BSSCount: 15}

func (w Weights) array() [numMetrics]int {
	return [numMetrics]int{w.RSSI, w.BSSCount, w.NoiseFloor,
		w.ChannelFree, w.TxPowerRange, w.TxPowerThroughput}
}

// Sum returns the total of the six priorities.
func (w Weights) Sum() int {
	var sum int
	for _, v := range w.array() {
		sum += v
	}
	return sum
}

// UnpackWeights decodes the packed form, in which each priority occupies one
// nibble: RSSI in bits 0-3, BSS count in 4-7, noise floor in 8-11, channel
// free in 12-15, tx power range in 16-19, tx power throughput in 20-23.
func UnpackWeights(packed uint32) Weights {
	nib := func(i uint) int {
		return int((packed >> (4 * i)) & 0xf)
	}
	return Weights{
		RSSI:              nib(metricRSSI),
		BSSCount:          nib(metricBSSCount),
		NoiseFloor:        nib(metricNoiseFloor),
		ChannelFree:       nib(metricChannelFree),
		TxPowerRange:      nib(metricTxPowerRange),
		TxPowerThroughput: nib(metricTxPowerThroughput),
	}
}

// Packed re-encodes the priorities into their packed form.
func (w Weights) Packed() uint32 {
	var packed uint32
	for i, v := range w.array() {
		packed |= uint32(v&0xf) << (4 * uint(i))
	}
	return packed
}

// The local scale of each metric is its share of WeightAmountLocal.  The
// extra 4 bits of precision keep the rounding close to the real ratio.
func localScale(weight, sum int) int {
	return ((((weight << 4) * WeightAmountLocal * 100) / sum) + 50) / 100 >> 4
}

// FreqWeight penalizes a single frequency.  Pct is the share of the distance
// to WeightMax that is *kept*: 100 leaves the weight alone, 0 pushes it all
// the way to WeightMax.
type FreqWeight struct {
	Freq int `yaml:"freq"`
	Pct  int `yaml:"pct"`
}

// RangeWeight penalizes every frequency in [Start, End].
type RangeWeight struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
	Pct   int `yaml:"pct"`
}

// Params are the raw settings of one ACS run.  They are validated and frozen
// into a WeightConfig by NewWeightConfig.
type Params struct {
	Weights Weights

	// If non-empty, only these frequencies may be chosen
	Channels []int

	// If non-zero, bounds on the frequencies that may be chosen
	StartFreq int
	EndFreq   int

	// The platform's preferred channel list
	PCL []int

	DFSPolicy DFSPolicy
	DFSMaster bool

	// Normalization applied to DFS channels under DFSDeprioritized
	DFSNormalizePct int

	Width          int
	AllowOverlap24 bool
	Mode           string
	SkipWeather    bool

	FreqWeights  []FreqWeight
	RangeWeights []RangeWeight
}

// WeightConfig is the immutable, validated configuration for one ACS run.  It
// may be shared by concurrent runs.
type WeightConfig struct {
	params Params
	local  [numMetrics]int
	allow  map[int]bool
	pcl    map[int]bool
}

// ValidationError lists all of the problems found in a set of Params.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid ACS config: " + strings.Join(e.Problems, "; ")
}

func validPct(pct int) bool {
	return pct >= 0 && pct <= 100
}

func (p *Params) validate() error {
	var problems []string
	bad := func(format string, a ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, a...))
	}

	for i, v := range p.Weights.array() {
		if v < 0 || v > 0xf {
			bad("%s weight %d not in [0,15]", metricNames[i], v)
		}
	}
	if p.Width == 0 {
		p.Width = wifi.Width20
	} else if !wifi.ValidWidth(p.Width) {
		bad("unsupported width %d", p.Width)
	}
	if !validModes[p.Mode] {
		bad("unknown mode '%s'", p.Mode)
	}
	if _, ok := dfsPolicyNames[p.DFSPolicy]; !ok {
		bad("unknown DFS policy %d", int(p.DFSPolicy))
	}
	if !validPct(p.DFSNormalizePct) {
		bad("dfs normalize pct %d not in [0,100]", p.DFSNormalizePct)
	}
	if p.StartFreq != 0 && p.EndFreq != 0 && p.StartFreq > p.EndFreq {
		bad("start freq %d above end freq %d", p.StartFreq, p.EndFreq)
	}
	for _, fw := range p.FreqWeights {
		if !validPct(fw.Pct) {
			bad("pct %d for %d not in [0,100]", fw.Pct, fw.Freq)
		}
	}
	for _, rw := range p.RangeWeights {
		if !validPct(rw.Pct) {
			bad("pct %d for %d-%d not in [0,100]", rw.Pct,
				rw.Start, rw.End)
		}
		if rw.Start > rw.End {
			bad("range %d-%d is backwards", rw.Start, rw.End)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// NewWeightConfig validates the parameters and derives the per-metric local
// scales.  If every priority is zero, the proportional redistribution is
// undefined, so DefaultWeights is used instead.
func NewWeightConfig(p Params) (*WeightConfig, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	p.Channels = append([]int(nil), p.Channels...)
	p.PCL = append([]int(nil), p.PCL...)
	p.FreqWeights = append([]FreqWeight(nil), p.FreqWeights...)
	p.RangeWeights = append([]RangeWeight(nil), p.RangeWeights...)
	sort.Ints(p.Channels)

	c := &WeightConfig{
		params: p,
		allow:  make(map[int]bool),
		pcl:    make(map[int]bool),
	}

	w := p.Weights
	if w.Sum() == 0 {
		w = DefaultWeights
	}
	sum := w.Sum()
	for i, v := range w.array() {
		c.local[i] = localScale(v, sum)
	}

	for _, f := range p.Channels {
		c.allow[f] = true
	}
	for _, f := range p.PCL {
		c.pcl[f] = true
	}

	return c, nil
}

// Params returns a copy of the parameters the config was built from.
func (c *WeightConfig) Params() Params {
	p := c.params
	p.Channels = append([]int(nil), p.Channels...)
	p.PCL = append([]int(nil), p.PCL...)
	p.FreqWeights = append([]FreqWeight(nil), p.FreqWeights...)
	p.RangeWeights = append([]RangeWeight(nil), p.RangeWeights...)
	return p
}

// Width returns the requested channel width.
func (c *WeightConfig) Width() int {
	return c.params.Width
}

// LocalScales returns the derived scale of each metric, in the order RSSI,
// BSS count, noise floor, channel free, tx power range, tx power throughput.
func (c *WeightConfig) LocalScales() [6]int {
	return c.local
}

func (c *WeightConfig) hasAllowList() bool {
	return len(c.allow) > 0
}

// allowed reports whether the frequency survives the allow-list.
func (c *WeightConfig) allowed(freq int) bool {
	return !c.hasAllowList() || c.allow[freq]
}

func (c *WeightConfig) inRange(freq int) bool {
	p := &c.params
	if p.StartFreq != 0 && freq < p.StartFreq {
		return false
	}
	if p.EndFreq != 0 && freq > p.EndFreq {
		return false
	}
	return true
}

func (c *WeightConfig) inPCL(freq int) bool {
	return c.pcl[freq]
}

func (c *WeightConfig) dfsAllowed() bool {
	return c.params.DFSMaster && c.params.DFSPolicy != DFSDisabled
}

// normalizePct returns the percentage to apply to the frequency's weight, and
// whether there is one.  A single-frequency override beats a range override,
// which beats the DFS policy.
func (c *WeightConfig) normalizePct(freq int, dfs bool) (int, bool) {
	for _, fw := range c.params.FreqWeights {
		if fw.Freq == freq {
			return fw.Pct, true
		}
	}
	for _, rw := range c.params.RangeWeights {
		if freq >= rw.Start && freq <= rw.End {
			return rw.Pct, true
		}
	}
	if dfs && c.params.DFSPolicy == DFSDeprioritized {
		return c.params.DFSNormalizePct, true
	}
	return 0, false
}
