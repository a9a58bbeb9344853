package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propmanage/propsync/internal/gateway"
	"github.com/propmanage/propsync/internal/livefeed"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/tokenfile"
)

type watchOptions struct {
	interval time.Duration
	jitter   float64
	live     bool
	// count stops the loop after this many printed states; zero runs until
	// the context ends.
	count int
}

func newWatchCmd(current func() *app) *cobra.Command {
	var (
		opts   watchOptions
		noLive bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the dashboard, refreshing on an interval and on server events",
		Args:  cobra.NoArgs,
		RunE: authed(current, func(ctx context.Context, a *app, _ []string) error {
			if opts.interval == 0 {
				opts.interval = a.cfg.Watch.Interval
			}
			if opts.jitter < 0 {
				opts.jitter = a.cfg.Watch.Jitter
			}
			opts.live = a.cfg.Watch.LiveFeed && !noLive
			return runWatch(ctx, a, opts)
		}),
	}
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "refresh interval (default watch.interval)")
	cmd.Flags().Float64Var(&opts.jitter, "jitter", -1, "interval jitter ratio in [0,1] (default watch.jitter)")
	cmd.Flags().BoolVar(&noLive, "no-live", false, "do not listen for server change events")
	cmd.Flags().IntVar(&opts.count, "count", 0, "exit after printing this many updates")
	return cmd
}

// runWatch keeps the session in step with the token file, listens for change
// events and refreshes the dashboard until ctx ends.
func runWatch(ctx context.Context, a *app, opts watchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if a.tokenFile != "" {
		g.Go(func() error {
			if err := tokenfile.Watch(ctx, a.tokenFile, a.client.Session(), a.logger); err != nil {
				a.logger.Warn("token file watch stopped", zap.String("path", a.tokenFile), zap.Error(err))
			}
			return nil
		})
	}

	if opts.live {
		url, err := livefeed.EventsURL(a.cfg.Client.BaseURL)
		if err != nil {
			return err
		}
		feed := livefeed.New(livefeed.Options{
			URL:     url,
			Session: a.client.Session(),
			Logger:  a.logger,
			OnEvent: func(ev model.ChangeEvent) {
				a.logger.Debug("change event", zap.String("resource", ev.Resource), zap.String("action", string(ev.Action)))
				if ev.Resource != model.ResourceNotifications {
					a.store.Refresh(ctx, gateway.DashboardKey())
				}
			},
		})
		g.Go(func() error {
			return feed.Run(ctx, a.store)
		})
	}

	g.Go(func() error {
		defer cancel()
		return pollDashboard(ctx, a, opts, rand.New(rand.NewSource(time.Now().UnixNano())))
	})
	return g.Wait()
}

// pollDashboard prints every settled dashboard state and refreshes on a
// jittered interval.
func pollDashboard(ctx context.Context, a *app, opts watchOptions, rng *rand.Rand) error {
	key := gateway.DashboardKey()
	sub := a.store.Observe(key)
	defer sub.Close()

	a.store.Request(ctx, key)
	timer := time.NewTimer(jitteredIntervalWithSample(opts.interval, opts.jitter, rng.Float64()))
	defer timer.Stop()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-sub.C:
			if !ok {
				return nil
			}
			line, ok := stateLine(time.Now(), state)
			if !ok {
				continue
			}
			fmt.Fprintln(a.out, line)
			printed++
			if opts.count > 0 && printed >= opts.count {
				return nil
			}
		case <-timer.C:
			a.store.Refresh(ctx, key)
			timer.Reset(jitteredIntervalWithSample(opts.interval, opts.jitter, rng.Float64()))
		}
	}
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// jitteredIntervalWithSample spreads base by up to ratio in either direction;
// sample in [0,1] picks the point, 0.5 being base itself.
func jitteredIntervalWithSample(base time.Duration, ratio, sample float64) time.Duration {
	if base <= 0 {
		return time.Second
	}
	ratio = clampJitterRatio(ratio)
	if ratio == 0 {
		return base
	}
	sample = clampJitterRatio(sample)
	factor := 1 + (sample*2-1)*ratio
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
