// Command aes67bridged runs the AES67 virtual audio endpoint daemon: it
// owns the ring fabric, channel map, PTP registry, stream manager, and
// the read-only status/metrics HTTP surface, and restores any streams
// persisted by a previous run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aes67bridge/aes67bridge/internal/channelmap"
	"github.com/aes67bridge/aes67bridge/internal/config"
	"github.com/aes67bridge/aes67bridge/internal/deviceshell"
	"github.com/aes67bridge/aes67bridge/internal/persist"
	"github.com/aes67bridge/aes67bridge/internal/ptp"
	"github.com/aes67bridge/aes67bridge/internal/ringfabric"
	"github.com/aes67bridge/aes67bridge/internal/sdp"
	"github.com/aes67bridge/aes67bridge/internal/statusapi"
	"github.com/aes67bridge/aes67bridge/internal/stream"
)

const (
	statusSweepInterval = 2 * time.Second
	scopeFileName        = "scope.yaml"
	shutdownTimeout       = 15 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting aes67bridged",
		"status_addr", cfg.StatusAddr,
		"device_channels", cfg.DeviceChannels,
		"ptp_enabled", cfg.PTPEnabled,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	fabric := ringfabric.New(48000, cfg.RingSafetyMs)
	chanMap := channelmap.New()
	ptpReg := ptp.NewRegistry()
	ptpReg.SetEnabled(cfg.PTPEnabled)

	store := deviceshell.NewOSConfigStore()
	scopePath := filepath.Join(cfg.DataDir, scopeFileName)
	persister := persist.New(scopePath, store, logger)

	manager := stream.NewManager(
		fabric,
		chanMap,
		ptpReg,
		48000,
		time.Duration(cfg.ConnectionTimeoutMs)*time.Millisecond,
		persister,
		logger,
	)
	defer manager.Close()

	manager.Subscribe(func(ev stream.Event) {
		slog.Info("stream event", "kind", ev.Kind, "stream_id", ev.Info.ID, "name", ev.Info.Name)
	})

	restoreStreams(manager, persister, logger)

	manager.StartStatusSweeper(statusSweepInterval)
	defer manager.StopStatusSweeper()

	statusSrv := statusapi.NewServer(manager, logger)
	httpSrv := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      statusSrv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status api listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("status api server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("status api shutdown error", "error", err)
	}

	manager.RemoveAll()

	slog.Info("aes67bridged stopped")
}

// restoreStreams loads any streams persisted by a previous run and
// re-admits each one. A record that no longer satisfies admission is
// dropped with a logged warning rather than aborting startup.
func restoreStreams(manager *stream.Manager, persister *persist.Persister, logger *slog.Logger) {
	records, err := persister.Load()
	if err != nil {
		logger.Error("failed to load persisted streams", "error", err)
		return
	}

	restored := 0
	for _, rec := range records {
		var admitErr error
		switch rec.Descriptor.Direction {
		case sdp.DirectionRecvOnly:
			_, admitErr = manager.AddReceiveStreamWithMapping(rec.Descriptor, rec.Mapping)
		case sdp.DirectionSendOnly:
			_, admitErr = manager.CreateTransmitStream(
				rec.Descriptor.SessionName,
				rec.Descriptor.ConnectionAddress,
				rec.Descriptor.Port,
				rec.Descriptor.NumChannels,
				rec.Mapping,
			)
		default:
			admitErr = fmt.Errorf("unknown persisted stream direction %q", rec.Descriptor.Direction)
		}
		if admitErr != nil {
			logger.Warn("dropping persisted stream on restore", "name", rec.Descriptor.SessionName, "error", admitErr)
			continue
		}
		restored++
	}

	if restored > 0 {
		logger.Info("restored persisted streams", "count", restored)
	}
}
