/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"sapacs/ap_common/acs"
	"sapacs/ap_common/acscfg"
	"sapacs/ap_common/apscan"
	"sapacs/ap_common/survey"
	"sapacs/common/wifi"

	"github.com/bluele/gcache"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tatsushid/go-prettytable"
)

// selector holds everything a run needs beyond the scan itself.  It outlives
// a single run in monitor mode.
type selector struct {
	in    *inputs
	cfg   *acscfg.Config
	nol   acs.NOL
	avoid *acs.AvoidanceList

	// Last good survey per interface
	surveys gcache.Cache
	dump    func(ctx context.Context, iwCmd, iface string) (acs.StatusMap, error)
}

// surveyMaxAge bounds how long a survey sample may stand in for a failed
// dump.
const surveyMaxAge = 5 * time.Minute

func newSelector(in *inputs, cfg *acscfg.Config) *selector {
	return &selector{
		in:      in,
		cfg:     cfg,
		avoid:   acs.NewAvoidanceList(),
		surveys: gcache.New(4).LRU().Expiration(surveyMaxAge).Build(),
		dump:    survey.Dump,
	}
}

// liveSurvey dumps the interface's survey counters.  When the dump fails, the
// last good sample is reused until it ages out.
func (s *selector) liveSurvey(ctx context.Context) acs.ChannelStatusLookup {
	iface := s.in.iface

	m, err := s.dump(ctx, s.in.iwCmd, iface)
	if err == nil {
		// Set only fails when a serialization func is configured
		_ = s.surveys.Set(iface, m)
		return m
	}

	if v, cerr := s.surveys.Get(iface); cerr == nil {
		slog.Warnf("survey failed, reusing the last sample: %v", err)
		return v.(acs.StatusMap)
	}
	slog.Warnf("no survey data: %v", err)
	return nil
}

// gather collects the scan and survey data for one run.
func (s *selector) gather(ctx context.Context) ([]acs.ScanObservation, acs.ChannelStatusLookup, error) {
	var obs []acs.ScanObservation
	var status acs.ChannelStatusLookup
	var err error

	in := s.in
	if in.live() {
		scanner := &apscan.Scanner{Iface: in.iface, IwCmd: in.iwCmd, Log: slog}
		aps, err := scanner.Scan(ctx)
		if err != nil {
			return nil, nil, err
		}
		obs = apscan.Observations(aps)
	} else if obs, err = loadScanFile(appFs, in.scanFile); err != nil {
		return nil, nil, err
	}

	switch {
	case in.noSurvey:
	case in.surveyFile != "":
		m, err := loadSurveyFile(appFs, in.surveyFile)
		if err != nil {
			return nil, nil, err
		}
		status = m
	case in.live():
		// Survey data only sharpens the weights, so carry on without it
		status = s.liveSurvey(ctx)
	}

	return obs, status, nil
}

func (s *selector) request(obs []acs.ScanObservation, status acs.ChannelStatusLookup) *acs.Request {
	return &acs.Request{
		Config:     s.cfg.Weight,
		Regulatory: s.cfg.Domain,
		Scan:       obs,
		Status:     status,
		NOL:        s.nol,
		Avoid:      s.avoid,
		Log:        slog,
	}
}

func (s *selector) selectOnce(ctx context.Context) (*acs.Selection, error) {
	obs, status, err := s.gather(ctx)
	if err != nil {
		return nil, err
	}
	return acs.SelectChannel(s.request(obs, status))
}

func weightString(w acs.Weight) string {
	switch {
	case w.Avoided():
		return "avoided"
	case w.Excluded():
		return "excluded"
	}
	return strconv.Itoa(w.Value())
}

// printCandidates writes the ranked candidates, then the decision.
func printCandidates(w io.Writer, sel *acs.Selection, max int) {
	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Rank", AlignRight: true},
		prettytable.Column{Header: "Chan", AlignRight: true},
		prettytable.Column{Header: "Freq", AlignRight: true},
		prettytable.Column{Header: "BSS", AlignRight: true},
		prettytable.Column{Header: "RSSI", AlignRight: true},
		prettytable.Column{Header: "Weight", AlignRight: true},
	)
	table.Separator = "  "

	for i, c := range sel.Candidates {
		if max > 0 && i == max {
			break
		}
		table.AddRow(i+1, wifi.FreqToChannel(c.Freq), c.Freq,
			c.BSSCount, c.RSSI, weightString(c.Weight))
	}
	fmt.Fprint(w, table.String())

	msg := fmt.Sprintf("selected %s (%dMHz) width %d weight %d",
		wifi.ChanString(sel.Freq), sel.Freq, sel.Width, sel.Weight)
	if sel.SecondaryFreq != 0 {
		msg += fmt.Sprintf(" secondary %s",
			wifi.ChanString(sel.SecondaryFreq))
	}
	if sel.Width > wifi.Width20 {
		msg += fmt.Sprintf(" center %d", sel.Bond.Center())
	}
	fmt.Fprintln(w, color.GreenString(msg))
}

func runSelect(cmd *cobra.Command, in *inputs, max int) error {
	cfg, err := loadConfig(in.configPath)
	if err != nil {
		return err
	}

	s := newSelector(in, cfg)
	if !in.noNOL {
		store, err := openNOL(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		s.nol = store
	}

	sel, err := s.selectOnce(context.Background())
	if err != nil {
		return err
	}
	slog.Debugw("selection done", "run", sel.RunID)
	printCandidates(cmd.OutOrStdout(), sel, max)
	return nil
}

func selectCommand() *cobra.Command {
	var in inputs
	var max int

	cmd := &cobra.Command{
		Use:   "select [flags]",
		Short: "Choose the best channel and show the ranked candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, &in, max)
		},
	}
	in.addFlags(cmd)
	cmd.Flags().IntVarP(&max, "top", "n", 10,
		"number of candidates to show, 0 for all")
	return cmd
}
