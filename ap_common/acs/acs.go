/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package acs implements automatic channel selection for an access point.
//
// A selection is a single synchronous pass over the regulatory channel list:
// each channel is marked eligible or not, the most recent scan results are
// folded in (including the interference each BSS bleeds onto its neighbors),
// every channel is given a weight, bonded channels are collapsed into a
// single representative, and the lowest weighted channel surviving the
// selection policy wins.  Lower weights are better.
package acs

import (
	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/satori/uuid"
	"go.uber.org/zap"
)

// ErrNotSelected is returned, possibly wrapped, whenever no channel could be
// chosen.  The caller is expected to fall back to a default channel.
var ErrNotSelected = errors.New("no channel selected")

// Number of alternative candidates included in the decision log
const logCandidates = 5

// Request gathers the inputs of one channel selection.  Config and
// Regulatory are required; everything else is optional.
type Request struct {
	Config     *WeightConfig
	Regulatory Regulatory

	// Results of the most recent scan, processed in order
	Scan []ScanObservation

	Status ChannelStatusLookup
	NOL    NOL
	Policy FreqPolicy

	// Shared across runs; updated with any avoid-channel advertisements
	// found in the scan
	Avoid *AvoidanceList

	Log *zap.SugaredLogger
}

// Selection is the result of a successful run.
type Selection struct {
	RunID string

	Freq int

	// For 2.4GHz 40MHz operation, the secondary channel.  0 otherwise.
	SecondaryFreq int

	// The width we'll actually operate at, which may be narrower than
	// requested, and the bonded channel it describes
	Width int
	Bond  wifi.Bond

	Weight int

	// Every eligible channel, best first
	Candidates []Channel
}

// run holds the inputs of a single selection.  The spectrum it builds is
// owned by the run, so concurrent runs share nothing but the AvoidanceList.
type run struct {
	id     string
	cfg    *WeightConfig
	reg    Regulatory
	status ChannelStatusLookup
	nol    NOL
	policy FreqPolicy
	avoid  *AvoidanceList
	log    *zap.SugaredLogger
}

func newRun(req *Request) *run {
	id := uuid.NewV4().String()
	slog := req.Log
	if slog == nil {
		slog = zap.NewNop().Sugar()
	}

	return &run{
		id:     id,
		cfg:    req.Config,
		reg:    req.Regulatory,
		status: req.Status,
		nol:    req.NOL,
		policy: req.Policy,
		avoid:  req.Avoid,
		log:    slog.With("acs", id),
	}
}

// SelectChannel picks the best operating channel for the inputs in the
// request.  All failures wrap ErrNotSelected.
func SelectChannel(req *Request) (*Selection, error) {
	if req == nil || req.Config == nil {
		return nil, errors.Wrap(ErrNotSelected, "missing ACS config")
	}
	if req.Regulatory == nil {
		return nil, errors.Wrap(ErrNotSelected, "missing regulatory info")
	}

	r := newRun(req)
	width := r.cfg.Width()

	sp := r.initSpectrum()
	if len(sp.chans) == 0 {
		return nil, errors.Wrap(ErrNotSelected, "empty channel list")
	}

	r.aggregate(sp, req.Scan)
	r.computeWeights(sp)
	r.collapse(sp, width)
	sortSpectrum(sp)

	best := r.selectBest(sp)
	if best == nil {
		r.log.Infow("no eligible channel", "width", width)
		return nil, errors.Wrap(ErrNotSelected, "no eligible channel")
	}

	sel := &Selection{
		RunID:      r.id,
		Freq:       best.Freq,
		Width:      width,
		Weight:     best.Weight.Value(),
		Candidates: candidates(sp),
	}
	r.finishSelection(sp, best, sel)

	r.logDecision(best, sel)
	return sel, nil
}

// finishSelection settles the width and bonding of the chosen channel.
func (r *run) finishSelection(sp *spectrum, best *Channel, sel *Selection) {
	switch {
	case sel.Width == wifi.Width20:
		sel.Bond = wifi.Bond{Width: wifi.Width20, Center0: best.Freq}

	case best.Weight.Excluded():
		// A winner that couldn't be grouped can still be used, on its
		// own.
		r.log.Infof("%s can't bond to %dMHz; using 20MHz",
			wifi.ChanString(best.Freq), sel.Width)
		sel.Width = wifi.Width20
		sel.Bond = wifi.Bond{Width: wifi.Width20, Center0: best.Freq}

	case wifi.Is24(best.Freq):
		sec := secondary24(sp, best.Freq)
		if sec == 0 {
			sel.Width = wifi.Width20
			sel.Bond = wifi.Bond{Width: wifi.Width20,
				Center0: best.Freq}
		} else {
			sel.SecondaryFreq = sec
			sel.Bond = wifi.Bond{Width: wifi.Width40,
				Center0: (best.Freq + sec) / 2}
		}

	default:
		sel.Bond = r.reg.Bond(best.Freq, sel.Width)
		sel.Width = sel.Bond.Width
	}
}

func candidates(sp *spectrum) []Channel {
	rval := make([]Channel, 0, len(sp.chans))
	for _, c := range sp.chans {
		if c.Valid {
			rval = append(rval, c)
		}
	}
	return rval
}

func (r *run) logDecision(best *Channel, sel *Selection) {
	r.log.Infow("selected channel",
		"chan", wifi.ChanString(sel.Freq),
		"secondary", sel.SecondaryFreq,
		"width", sel.Width,
		"weight", sel.Weight,
		"rssi", best.RSSI,
		"bss", best.BSSCount)

	for i, c := range sel.Candidates {
		if i == logCandidates {
			break
		}
		r.log.Debugf("  candidate %d: %s", i, c.String())
	}
}
