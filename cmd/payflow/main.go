// File: cmd/payflow/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"rollingpi/internal/config"
	"rollingpi/internal/domain"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

const usage = `payflow drives the rollingpi payment flow from a terminal.

usage: payflow [-config file] [-dev] <command> [flags]

commands:
  login     sign in through the wallet and store the session
  pay       buy a plan through the wallet
  pay-qr    buy a plan on another device by scanning a QR code
  link      show a QR code that signs this device in from another one
  sync      hand this device's session to the device showing code
  watch     wait for a payment to settle, or resume pending ones
  slots     show remaining slider slots for a plan
  plans     list the live promotions of an article
  activate  activate a plan without payment (admin)
  cancel    cancel an article's plan (admin)
  price     show current plan prices in Pi
`

func main() {
	fs := flag.NewFlagSet("payflow", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	cfg, err := config.LoadConfig(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.ValidateClient(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		os.Exit(2)
	}

	logger := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, os.Stderr)
	metrics.SetBuildInfo(version, commit, "payflow")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup failed")
	}
	defer app.Close()

	if err := cmd(ctx, app, args[1:], os.Stdout); err != nil {
		logger.Error().Err(err).Str("command", args[0]).Msg("command failed")
		os.Exit(exitCode(err))
	}
}

type command func(ctx context.Context, app *App, args []string, out io.Writer) error

var commands = map[string]command{
	"login":    runLogin,
	"pay":      runPay,
	"pay-qr":   runPayQR,
	"link":     runLink,
	"sync":     runSync,
	"watch":    runWatch,
	"slots":    runSlots,
	"plans":    runPlans,
	"activate": runActivate,
	"cancel":   runCancel,
	"price":    runPrice,
}

// exitCode distinguishes what a wrapping script may want to retry.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return 2
	case errors.Is(err, domain.ErrUserCancelled):
		return 3
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrAuthDeclined):
		return 4
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 130
	}
	return 1
}
