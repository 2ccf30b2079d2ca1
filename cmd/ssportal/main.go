package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigschom/ssportal/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config path (optional, defaults to ~/.config/ssportal/config.toml)")
	prefsPath := flag.String("prefs", "", "preferences path (optional)")
	pollSeconds := flag.Int("poll", 0, "check interval in seconds (optional, defaults to the configured interval)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, PrefsPath: *prefsPath}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = poll
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "ssportal: %v\n", err)
		return 1
	}
	return 0
}
