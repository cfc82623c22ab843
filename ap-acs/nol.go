/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"sapacs/ap_common/nolstore"
	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tatsushid/go-prettytable"
)

func withNOL(cmd *cobra.Command, fn func(*nolstore.Store) error) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	store, err := openNOL(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// parseFreqs accepts either frequencies in MHz or 5GHz channel numbers.
func parseFreqs(args []string) ([]int, error) {
	freqs := make([]int, 0, len(args))
	for _, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, errors.Errorf("bad frequency '%s'", a)
		}
		if v > 0 && v < 1000 {
			v = wifi.ChannelToFreq(wifi.HiBand, v)
		}
		if wifi.BandOf(v) == "" {
			return nil, errors.Errorf("bad channel '%s'", a)
		}
		freqs = append(freqs, v)
	}
	return freqs, nil
}

func printNOL(w io.Writer, list []nolstore.Entry, now time.Time) {
	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Chan", AlignRight: true},
		prettytable.Column{Header: "Freq", AlignRight: true},
		prettytable.Column{Header: "Expires"},
		prettytable.Column{Header: "Remaining", AlignRight: true},
	)
	table.Separator = "  "

	for _, e := range list {
		table.AddRow(wifi.FreqToChannel(e.Freq), e.Freq,
			e.Expires.Format(time.RFC3339),
			e.Expires.Sub(now).Round(time.Second))
	}
	fmt.Fprint(w, table.String())
}

func nolAdd(cmd *cobra.Command, args []string) error {
	freqs, err := parseFreqs(args)
	if err != nil {
		return err
	}
	period, _ := cmd.Flags().GetDuration("period")

	return withNOL(cmd, func(store *nolstore.Store) error {
		for _, f := range freqs {
			if err := store.AddUntil(f, time.Now().Add(period)); err != nil {
				return err
			}
		}
		return nil
	})
}

func nolList(cmd *cobra.Command, args []string) error {
	return withNOL(cmd, func(store *nolstore.Store) error {
		list, err := store.Entries()
		if err != nil {
			return err
		}
		printNOL(cmd.OutOrStdout(), list, time.Now())
		return nil
	})
}

func nolPurge(cmd *cobra.Command, args []string) error {
	return withNOL(cmd, func(store *nolstore.Store) error {
		cnt, err := store.Purge()
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", cnt)
		}
		return err
	})
}

func nolClear(cmd *cobra.Command, args []string) error {
	return withNOL(cmd, func(store *nolstore.Store) error {
		return store.Clear()
	})
}

func nolCommand() *cobra.Command {
	nolCmd := &cobra.Command{
		Use:   "nol <subcmd> [flags] [args]",
		Short: "Administer the DFS Non-Occupancy List",
		Args:  cobra.NoArgs,
	}
	nolCmd.PersistentFlags().StringP("config", "c", "", "ACS config YAML file")

	addCmd := &cobra.Command{
		Use:   "add [flags] <freq|chan>...",
		Short: "Record a radar hit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  nolAdd,
	}
	addCmd.Flags().Duration("period", nolstore.DefaultPeriod,
		"non-occupancy period")
	nolCmd.AddCommand(addCmd)

	nolCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the channels still off limits",
		Args:  cobra.NoArgs,
		RunE:  nolList,
	})
	nolCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop expired entries",
		Args:  cobra.NoArgs,
		RunE:  nolPurge,
	})
	nolCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the list",
		Args:  cobra.NoArgs,
		RunE:  nolClear,
	})
	return nolCmd
}
