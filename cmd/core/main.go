// Package main provides a one-shot sync command for scripted and headless use.
// It opens the configured stores, signs in with a token, runs a single sync
// cycle and prints the resulting status as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medadhere/backend/internal/app"
	"github.com/medadhere/backend/internal/config"
	"github.com/medadhere/backend/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

type options struct {
	configPath  string
	token       string
	timeout     time.Duration
	diagnostics bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("MEDADHERE_CONFIG"), "path to YAML config file")
	flag.StringVar(&opts.token, "token", os.Getenv("MEDADHERE_TOKEN"), "session token for the remote store")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "maximum time to wait for the cycle")
	flag.BoolVar(&opts.diagnostics, "diagnostics", false, "print the full diagnostics snapshot instead of the status")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("medadhere-core v%s\n", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "medadhere-core: %v\n", err)
		os.Exit(2)
	}
	logger := logging.Init(cfg.Log)
	defer logger.Sync()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "medadhere-core: %v\n", err)
		os.Exit(1)
	}
}

// run performs one sync cycle. The status is printed even when the cycle fails.
func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	if opts.token == "" {
		return errors.New("a session token is required (-token or MEDADHERE_TOKEN)")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Session.SignInWithToken(opts.token); err != nil {
		return err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	syncErr := a.Orchestrator.SyncNow(ctx)

	var report interface{} = a.Orchestrator.GetSyncStatus()
	if opts.diagnostics {
		report = a.Orchestrator.Diagnostics()
	}
	if err := writeReport(out, report); err != nil {
		return err
	}
	return syncErr
}

func writeReport(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
