package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ichain-scraper/checkpoint"
	"github.com/tos-network/ichain-scraper/config"
	"github.com/tos-network/ichain-scraper/log"
	"github.com/tos-network/ichain-scraper/metrics"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to the TOML config file (validators, threshold, metrics_port); env vars override",
}

const discoveryInterval = 30 * time.Second

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "ichain-validator",
		Usage: "discover the highest interchain checkpoint index with a confirmed validator quorum",
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

	registry := checkpoint.NewRegistry()
	validators := make([]string, 0, len(cfg.Validators))
	for addr, vc := range cfg.Validators {
		syncer, err := checkpoint.NewCheckpointSyncer(ctx, checkpoint.CheckpointSyncerConfig{
			Kind:     vc.CheckpointSyncer.Kind,
			Location: vc.CheckpointSyncer.Location,
		})
		if err != nil {
			return fmt.Errorf("validator: validator %q: %w", addr, err)
		}
		registry.Register(addr, syncer)
		validators = append(validators, addr)
	}

	quorum := checkpoint.NewSyncer(registry, validators, cfg.Threshold)

	var minIndex uint32
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ckpt, err := quorum.FetchCheckpointInRange(ctx, minIndex, ^uint32(0))
			if err != nil {
				log.Warn("checkpoint quorum discovery failed", "err", err)
				continue
			}
			if ckpt == nil {
				continue
			}
			m.CheckpointQuorumIdx.WithLabelValues(ckpt.Checkpoint.Mailbox).Set(float64(ckpt.Checkpoint.Index))
			log.Info("confirmed checkpoint quorum", "index", ckpt.Checkpoint.Index, "root", ckpt.Checkpoint.Root, "mailbox", ckpt.Checkpoint.Mailbox, "signers", len(ckpt.Signatures))
			minIndex = ckpt.Checkpoint.Index + 1
		}
	}
}
