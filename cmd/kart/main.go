// Command kart is the shopper CLI: it keeps a basket on disk, signs shoppers
// in and out, and checks out against the storefront API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/storage/local"
	"github.com/xenking/kart-checkout/internal/telemetry"
)

func main() {
	verbose := flag.Bool("v", false, "log core events to stderr")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), errUsage.Error())
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	lg := zap.NewNop()
	if *verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "kart:", err)
			os.Exit(1)
		}
		lg = dev
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, flag.Args()); err != nil {
		lg.Debug("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "kart:", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return errors.Wrap(err, "checkout policy")
	}
	migration, err := cfg.MigrationPolicy()
	if err != nil {
		return err
	}

	kv, err := local.Open(cfg.StateDir, cfg.Quota)
	if err != nil {
		return errors.Wrap(err, "open state dir")
	}
	api, err := client.New(cfg.APIURL,
		client.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		}),
		client.WithUserAgent("kart-cli"),
	)
	if err != nil {
		return errors.Wrap(err, "create api client")
	}

	meter, err := telemetry.NewMeterSink(otel.GetMeterProvider().Meter("kart-cli"))
	if err != nil {
		return errors.Wrap(err, "create meter sink")
	}

	sh := NewShell(ShellOptions{
		In:        os.Stdin,
		Out:       os.Stdout,
		Backend:   api,
		Storage:   kv,
		Policy:    policy,
		Migration: migration,
		Sink:      telemetry.Multi{telemetry.NewZapSink(lg), meter},
	})
	if err := sh.Open(ctx); err != nil {
		return errors.Wrap(err, "open basket")
	}
	lg.Debug("Basket opened", zap.String("state_dir", kv.Dir()), zap.String("api", cfg.APIURL))
	return sh.Run(ctx, args)
}
