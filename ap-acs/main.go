/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// ap-acs - automatic channel selection for a SoftAP radio
//
// The select command runs a single selection, from a live scan or from saved
// scan and survey data, and prints the ranked candidates.  The monitor command
// repeats the selection on an interval and exports the results to Prometheus.
// The nol commands inspect and edit the persistent DFS Non-Occupancy List.

package main

import (
	"fmt"
	"os"
	"strings"

	"sapacs/ap_common/acs"
	"sapacs/ap_common/acscfg"
	"sapacs/ap_common/apscan"
	"sapacs/ap_common/aputil"
	"sapacs/ap_common/nolstore"
	"sapacs/ap_common/survey"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const pname = "ap-acs"

var (
	appFs   = afero.NewOsFs()
	logOpts aputil.LogOptions
	slog    *zap.SugaredLogger
)

// inputs are the flags naming where a selection's data comes from.
type inputs struct {
	configPath string
	iface      string
	iwCmd      string
	scanFile   string
	surveyFile string
	noSurvey   bool
	noNOL      bool
}

func (in *inputs) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&in.configPath, "config", "c", "", "ACS config YAML file")
	f.StringVarP(&in.iface, "iface", "i", "wlan0", "wireless interface")
	f.StringVar(&in.iwCmd, "iw", apscan.DefaultIwCmd, "path to iw")
	f.StringVar(&in.scanFile, "scan-file", "",
		"saved scan, as JSON or iw scan output, instead of a live scan")
	f.StringVar(&in.surveyFile, "survey-file", "",
		"saved iw survey dump, instead of a live survey")
	f.BoolVar(&in.noSurvey, "no-survey", false, "ignore channel survey data")
	f.BoolVar(&in.noNOL, "no-nol", false, "don't consult the DFS NOL")
}

func (in *inputs) live() bool {
	return in.scanFile == ""
}

// loadScanFile reads a saved scan.  Files ending in .json hold observations
// written by 'ap-acs scan --save'; anything else is taken to be raw iw output.
func loadScanFile(fs afero.Fs, path string) ([]acs.ScanObservation, error) {
	if strings.HasSuffix(path, ".json") {
		return apscan.Load(fs, path)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return apscan.Observations(apscan.ParseScan(string(data))), nil
}

func loadSurveyFile(fs afero.Fs, path string) (acs.StatusMap, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return survey.Parse(string(data)), nil
}

func loadConfig(path string) (*acscfg.Config, error) {
	cfg, err := acscfg.Load(appFs, path)
	if err != nil {
		return nil, err
	}
	slog.Debugw("loaded config", "country", cfg.Country,
		"width", cfg.Params.Width, "weights",
		fmt.Sprintf("%#06x", cfg.Params.Weights.Packed()))
	return cfg, nil
}

func openNOL(cfg *acscfg.Config) (*nolstore.Store, error) {
	return nolstore.Open(cfg.NOLDB, 0, slog)
}

func setupLogs(cmd *cobra.Command, args []string) error {
	var err error

	// Usage is only useful when argument validation fails
	cmd.SilenceUsage = true

	slog, err = logOpts.NewLogger()
	return err
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               pname,
		Short:             "Automatic channel selection for a SoftAP",
		PersistentPreRunE: setupLogs,
		SilenceErrors:     true,
	}
	logOpts.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(selectCommand())
	rootCmd.AddCommand(monitorCommand())
	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(surveyCommand())
	rootCmd.AddCommand(nolCommand())
	return rootCmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%s: %v", pname, err))
		os.Exit(1)
	}
}
