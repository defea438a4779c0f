// Command collectord runs the IEC 104 data-acquisition service: it wires
// the inventory store, the device supervisor, the measurement pipeline,
// the command gateway and the HTTP control plane into one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yobol/iec104collector/internal/config"
	"github.com/yobol/iec104collector/internal/device"
	"github.com/yobol/iec104collector/internal/gateway"
	"github.com/yobol/iec104collector/internal/httpapi"
	"github.com/yobol/iec104collector/internal/inventory"
	"github.com/yobol/iec104collector/internal/measure"
	"github.com/yobol/iec104collector/internal/supervisor"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "collectord",
		Short: "IEC 60870-5-104 data-acquisition service",
		RunE:  run,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	store := inventory.New(rdb)
	samples := make(chan device.InformationSample, 256)

	cfgFor := func(d inventory.Device) device.Config {
		return cfg.DeviceConfig(uint16(d.ID))
	}
	sup := supervisor.New(store, cfgFor, samples, entry)
	pipeline := measure.New(store, cfg.Protocol, entry)
	gw := gateway.New(store, cfg.GatewayTimeout, entry)
	api := httpapi.New(store, gw, entry)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Engine}

	errCh := make(chan error, 3)
	go func() { errCh <- sup.Run(ctx) }()
	go func() {
		pipeline.Run(ctx, samples)
		errCh <- nil
	}()
	go func() {
		entry.WithField("addr", cfg.HTTPAddr).Info("http control plane listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		entry.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			entry.WithError(err).Error("component failed")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return nil
}
