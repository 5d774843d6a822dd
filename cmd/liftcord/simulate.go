package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/liftcord/liftcord/backoff"
	"github.com/liftcord/liftcord/config"
)

type simulateOptions struct {
	backoff   config.BackoffConfig
	attempts  int
	idle      time.Duration
	idleAfter int
	seed      uint64
}

func newSimulateCmd(a *app) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Print the delay schedule a reconnecting client would follow",
		Long: `Print the delay schedule a reconnecting client would follow.

Every attempt sleeps for its full delay on a simulated clock. --idle inserts a
quiet period after --idle-after attempts to show the backoff starting over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("base") {
				opts.backoff.Base = a.cfg.Backoff.Base
			}
			if !cmd.Flags().Changed("integral") {
				opts.backoff.Integral = a.cfg.Backoff.Integral
			}
			return simulate(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Float64Var(&opts.backoff.Base, "base", backoff.DefaultBase, "seed delay in seconds")
	cmd.Flags().BoolVar(&opts.backoff.Integral, "integral", false, "whole-second delays")
	cmd.Flags().IntVar(&opts.attempts, "attempts", 12, "number of failed attempts to simulate")
	cmd.Flags().DurationVar(&opts.idle, "idle", 0, "quiet period inserted after --idle-after attempts")
	cmd.Flags().IntVar(&opts.idleAfter, "idle-after", 5, "attempt after which the quiet period happens")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed for a reproducible schedule (0 picks one)")

	return cmd
}

// simClock only moves when told to.
type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time { return c.now }

func (c *simClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func simulate(w io.Writer, opts simulateOptions) error {
	if opts.attempts < 1 {
		return fmt.Errorf("--attempts must be at least 1, got %d", opts.attempts)
	}

	clock := &simClock{now: time.Unix(0, 0)}
	extra := []backoff.Option{backoff.WithClock(clock)}
	if opts.seed != 0 {
		extra = append(extra, backoff.WithRandSource(rand.NewPCG(opts.seed, opts.seed)))
	}

	b, err := opts.backoff.New(extra...)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"attempt", "at", "exponent", "bound", "delay"})
	table.SetAutoFormatHeaders(false)

	start := clock.Now()
	for attempt := 1; attempt <= opts.attempts; attempt++ {
		delay := b.Delay()

		table.Append([]string{
			strconv.Itoa(attempt),
			clock.Now().Sub(start).String(),
			strconv.Itoa(b.Exponent()),
			formatSeconds(b.Bound()),
			formatSeconds(delay),
		})

		clock.Advance(time.Duration(delay * float64(time.Second)))
		if attempt == opts.idleAfter && opts.idle > 0 {
			clock.Advance(opts.idle)
		}
	}

	table.Render()
	_, err = fmt.Fprintf(w, "base %ss, reset after %s idle\n", formatSeconds(b.Base()), b.ResetThreshold())
	return err
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
