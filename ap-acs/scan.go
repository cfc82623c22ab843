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
	"sort"

	"sapacs/ap_common/acs"
	"sapacs/ap_common/apscan"
	"sapacs/ap_common/survey"
	"sapacs/common/wifi"

	"github.com/klauspost/oui"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tatsushid/go-prettytable"
)

// openOUI loads an IEEE oui.txt database.
func openOUI(fs afero.Fs, path string) (oui.OuiDB, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening OUI database")
	}
	defer f.Close()

	db, err := oui.OpenStatic(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return db, nil
}

func vendor(db oui.OuiDB, bssid string) string {
	if db == nil {
		return ""
	}
	entry, err := db.Query(bssid)
	if err != nil {
		return ""
	}
	return entry.Manufacturer
}

func printScan(w io.Writer, obs []acs.ScanObservation, db oui.OuiDB) {
	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "BSSID"},
		prettytable.Column{Header: "Vendor"},
		prettytable.Column{Header: "Chan", AlignRight: true},
		prettytable.Column{Header: "Width", AlignRight: true},
		prettytable.Column{Header: "RSSI", AlignRight: true},
		prettytable.Column{Header: "Avoid"},
		prettytable.Column{Header: "SSID"},
	)
	table.Separator = "  "

	for _, o := range obs {
		width := o.Width
		if width == 0 {
			width = wifi.Width20
		}
		avoid := ""
		if ch, ok := acs.ParseAvoidIE(o.IEs); ok {
			avoid = fmt.Sprintf("%d", ch)
		}
		table.AddRow(o.BSSID, vendor(db, o.BSSID),
			wifi.FreqToChannel(o.Freq), width,
			o.RSSI, avoid, o.SSID)
	}
	fmt.Fprint(w, table.String())
}

func runScan(cmd *cobra.Command, in *inputs, save, ouiFile string) error {
	var obs []acs.ScanObservation
	var db oui.OuiDB
	var err error

	if ouiFile != "" {
		if db, err = openOUI(appFs, ouiFile); err != nil {
			return err
		}
	}

	if in.live() {
		scanner := &apscan.Scanner{Iface: in.iface, IwCmd: in.iwCmd, Log: slog}
		aps, err := scanner.Scan(context.Background())
		if err != nil {
			return err
		}
		obs = apscan.Observations(aps)
	} else if obs, err = loadScanFile(appFs, in.scanFile); err != nil {
		return err
	}

	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Freq != obs[j].Freq {
			return obs[i].Freq < obs[j].Freq
		}
		return obs[i].RSSI > obs[j].RSSI
	})
	printScan(cmd.OutOrStdout(), obs, db)

	if save != "" {
		return apscan.Save(appFs, save, obs)
	}
	return nil
}

func scanCommand() *cobra.Command {
	var in inputs
	var save, ouiFile string

	cmd := &cobra.Command{
		Use:   "scan [flags]",
		Short: "Scan for nearby BSSes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, &in, save, ouiFile)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.iface, "iface", "i", "wlan0", "wireless interface")
	f.StringVar(&in.iwCmd, "iw", apscan.DefaultIwCmd, "path to iw")
	f.StringVar(&in.scanFile, "scan-file", "",
		"reformat a saved scan instead of scanning")
	f.StringVarP(&save, "save", "o", "",
		"save the observations as JSON, for 'select --scan-file'")
	f.StringVar(&ouiFile, "oui-file", "",
		"IEEE oui.txt database, for BSSID vendor names")
	return cmd
}

func printSurvey(w io.Writer, m acs.StatusMap) {
	freqs := make([]int, 0, len(m))
	for f := range m {
		freqs = append(freqs, f)
	}
	sort.Ints(freqs)

	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Chan", AlignRight: true},
		prettytable.Column{Header: "Freq", AlignRight: true},
		prettytable.Column{Header: "Noise", AlignRight: true},
		prettytable.Column{Header: "Active", AlignRight: true},
		prettytable.Column{Header: "Busy", AlignRight: true},
		prettytable.Column{Header: "Rx", AlignRight: true},
		prettytable.Column{Header: "Tx", AlignRight: true},
	)
	table.Separator = "  "

	for _, f := range freqs {
		st := m[f]
		table.AddRow(wifi.FreqToChannel(f), f, st.NoiseFloor,
			st.CycleCount, st.RxClearCount, st.RxFrameCount,
			st.TxFrameCount)
	}
	fmt.Fprint(w, table.String())
}

func surveyCommand() *cobra.Command {
	var in inputs

	cmd := &cobra.Command{
		Use:   "survey [flags]",
		Short: "Show per-channel noise and utilization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m acs.StatusMap
			var err error

			if in.surveyFile != "" {
				m, err = loadSurveyFile(appFs, in.surveyFile)
			} else {
				m, err = survey.Dump(context.Background(),
					in.iwCmd, in.iface)
			}
			if err != nil {
				return err
			}
			printSurvey(cmd.OutOrStdout(), m)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.iface, "iface", "i", "wlan0", "wireless interface")
	f.StringVar(&in.iwCmd, "iw", apscan.DefaultIwCmd, "path to iw")
	f.StringVar(&in.surveyFile, "survey-file", "",
		"reformat a saved survey dump instead of surveying")
	return cmd
}
