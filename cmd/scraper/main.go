package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ichain-scraper/agentrt"
	"github.com/tos-network/ichain-scraper/chainscraper"
	"github.com/tos-network/ichain-scraper/config"
	"github.com/tos-network/ichain-scraper/log"
	"github.com/tos-network/ichain-scraper/metrics"
	"github.com/tos-network/ichain-scraper/rangecursor"
	"github.com/tos-network/ichain-scraper/store"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to the TOML config file (chains, db, metrics_port); env vars override",
}

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "ichain-scraper",
		Usage: "index dispatched/delivered interchain messages and gas payments into Postgres",
		Flags: []cli.Flag{configFlag},
		Action: run,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsPort); err != nil {
			log.Error("metrics exporter stopped", "err", err)
		}
	}()

	db, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("scraper: open store: %w", err)
	}
	defer db.Close()

	domains := make(map[uint32]string, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		domains[cc.Domain] = name
	}
	if err := db.SeedDomains(ctx, domains); err != nil {
		return fmt.Errorf("scraper: seed domains: %w", err)
	}

	runtime := agentrt.New()
	for name, cc := range cfg.Chains {
		provider, err := chainscraper.NewProvider(cc)
		if err != nil {
			return fmt.Errorf("scraper: chain %q: %w", name, err)
		}

		if cc.IndexFrom > 0 {
			height, err := db.CursorHeight(ctx, cc.Domain)
			if err != nil {
				return fmt.Errorf("scraper: chain %q: read cursor: %w", name, err)
			}
			if height == 0 {
				if err := db.CursorSet(ctx, cc.Domain, cc.IndexFrom); err != nil {
					return fmt.Errorf("scraper: chain %q: seed cursor: %w", name, err)
				}
			}
		}

		cursorCfg := rangecursor.Config{
			ChunkSize:       cc.ChunkSize,
			MinPollInterval: cc.MinPollInterval,
			MaxPollInterval: cc.MaxPollInterval,
		}
		scraper, err := chainscraper.New(ctx, cc.Domain, name, cc.Mailbox, provider, db, cursorCfg, m)
		if err != nil {
			return fmt.Errorf("scraper: chain %q: bootstrap: %w", name, err)
		}
		runtime.Register(name, scraper)
	}

	if err := runtime.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scraper: %w", err)
	}
	return nil
}
