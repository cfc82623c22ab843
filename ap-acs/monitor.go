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
	"os"
	"os/signal"
	"syscall"
	"time"

	"sapacs/ap_common/acsmetrics"
	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type monitorOpts struct {
	in          inputs
	interval    time.Duration
	metricsAddr string
	count       int
}

// monitor reruns the selection until the context is canceled or 'count' runs
// have completed.  A failed run is logged and retried at the next tick; the
// avoidance list carries over from one run to the next.
func monitor(ctx context.Context, s *selector, m *acsmetrics.Metrics,
	interval time.Duration, count int) error {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := 0
	for n := 0; count == 0 || n < count; n++ {
		start := time.Now()
		sel, err := s.selectOnce(ctx)
		m.Observe(sel, err, time.Since(start), s.avoid)

		switch {
		case err != nil:
			slog.Warnf("selection failed: %v", err)
		case sel.Freq != last:
			slog.Infow("channel changed",
				"chan", wifi.ChanString(sel.Freq),
				"width", sel.Width,
				"run", sel.RunID,
				"avoided", wifi.FreqList(s.avoid.Snapshot()))
			last = sel.Freq
		default:
			slog.Debugf("still on %s", wifi.ChanString(sel.Freq))
		}

		if count != 0 && n+1 == count {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			slog.Infof("signal (%v) received, stopping", s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func runMonitor(opts *monitorOpts) error {
	if opts.interval <= 0 {
		return errors.New("interval must be positive")
	}

	cfg, err := loadConfig(opts.in.configPath)
	if err != nil {
		return err
	}

	s := newSelector(&opts.in, cfg)
	if !opts.in.noNOL {
		store, err := openNOL(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		s.nol = store
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	m := acsmetrics.New(opts.in.iface)
	g, gctx := errgroup.WithContext(ctx)
	if opts.metricsAddr != "" {
		g.Go(func() error {
			return m.Serve(gctx, opts.metricsAddr)
		})
	}
	g.Go(func() error {
		// Stopping the monitor stops the metrics server too
		defer cancel()
		return monitor(gctx, s, m, opts.interval, opts.count)
	})

	slog.Infow(pname+" monitoring", "iface", opts.in.iface,
		"interval", opts.interval, "metrics", opts.metricsAddr)
	return g.Wait()
}

func monitorCommand() *cobra.Command {
	var opts monitorOpts

	cmd := &cobra.Command{
		Use:   "monitor [flags]",
		Short: "Repeat channel selection and export the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(&opts)
		},
	}
	opts.in.addFlags(cmd)
	f := cmd.Flags()
	f.DurationVar(&opts.interval, "interval", time.Minute,
		"time between selections")
	f.StringVar(&opts.metricsAddr, "metrics-addr", ":9330",
		"address for the Prometheus endpoint, empty to disable")
	f.IntVar(&opts.count, "count", 0, "stop after this many runs, 0 for no limit")
	return cmd
}
