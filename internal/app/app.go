package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bigschom/ssportal/internal/clock"
	"github.com/bigschom/ssportal/internal/config"
	"github.com/bigschom/ssportal/internal/logging"
	"github.com/bigschom/ssportal/internal/notify"
	"github.com/bigschom/ssportal/internal/poll"
	"github.com/bigschom/ssportal/internal/portal"
	"github.com/bigschom/ssportal/internal/prefs"
	"github.com/bigschom/ssportal/internal/requestqueue"
	"github.com/bigschom/ssportal/internal/respcache"
	"github.com/bigschom/ssportal/internal/state"
	"github.com/bigschom/ssportal/internal/ui"
)

// Options configure the console.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/ssportal/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
}

// Run boots the console until the operator quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		return fmt.Errorf("load prefs: %w", err)
	}

	log, flush, err := logging.New(cfg.LogPath(), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer flush()

	client, err := portal.NewClient(cfg.APIURL, cfg.APIToken)
	if err != nil {
		return fmt.Errorf("init portal client: %w", err)
	}
	log.Infow("console starting", "api", client.BaseURL(), "operator", cfg.Operator)

	sched := clock.Real{}
	queue := requestqueue.New(requestqueue.Config{
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		ProcessingDelay: cfg.Queue.ProcessingDelay,
	}, sched, log.Named("queue"))
	cache := respcache.New(respcache.Config{
		DefaultTTL: cfg.Cache.DefaultTTL,
		ErrorTTL:   cfg.Cache.ErrorTTL,
	}, queue, sched, log.Named("cache"))
	service := portal.NewService(client, cache, log.Named("portal"))

	store := &state.Store{}
	sink := ui.NewSink(ui.SinkBuffer)
	defer sink.Close()

	limiter := notify.NewRateLimiter(notify.Config{
		MaxPerMinute:      cfg.Notifications.MaxPerMinute,
		TagCooldown:       cfg.Notifications.TagCooldown,
		GroupingWindow:    cfg.Notifications.GroupingWindow,
		GroupingThreshold: cfg.Notifications.GroupingThreshold,
		Retention:         cfg.Notifications.Retention,
	}, sched)
	dispatcher := notify.NewDispatcher(limiter, sink, sched, log.Named("notify"))

	checker := NewChecker(service, store, dispatcher, cfg.Operator, log.Named("checker"))

	visibility := poll.NewVisibilityState(true)
	poller := poll.New(poll.Config{
		Interval:         cfg.Polling.Interval,
		Throttle:         cfg.Polling.Throttle,
		StartupDelay:     cfg.Polling.StartupDelay,
		VisibilitySettle: cfg.Polling.VisibilitySettle,
	}, sched, visibility, log.Named("poll"))

	var interval time.Duration
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	if err := poller.Start(checker.Check, interval); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer poller.Stop()

	err = ui.Run(ui.Options{
		Context:       ctx,
		Store:         store,
		Updater:       service,
		Trigger:       poller.Trigger,
		Focus:         visibility,
		Notifications: dispatcher,
		Sink:          sink,
		Clock:         sched,
		Operator:      cfg.Operator,
		LogPath:       cfg.LogPath(),
		RefreshTick:   ui.DefaultUIInterval,
		Prefs:         userPrefs,
		PrefsPath:     opts.PrefsPath,
	})
	stats := queue.Stats()
	log.Infow("console stopped", "requests_started", stats.Started, "coalesced", stats.Coalesced, "failed", stats.Failed)
	return err
}
