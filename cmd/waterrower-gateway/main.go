// Command waterrower-gateway is the daemon entrypoint: it wires the S4
// Driver, the FTMS peripheral, the HRM central, and the Training
// Session together and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/ble/central"
	"github.com/argus-cyclist/waterrower-gateway/internal/ble/peripheral"
	"github.com/argus-cyclist/waterrower-gateway/internal/ftms"
	"github.com/argus-cyclist/waterrower-gateway/internal/gwconfig"
	"github.com/argus-cyclist/waterrower-gateway/internal/gwlog"
	"github.com/argus-cyclist/waterrower-gateway/internal/hrm"
	"github.com/argus-cyclist/waterrower-gateway/internal/s4"
	"github.com/argus-cyclist/waterrower-gateway/internal/session"
)

func main() {
	cfg := gwconfig.LoadFromEnv()

	log, err := gwlog.New(cfg.LogLevel, cfg.LogFormat, "waterrower-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting waterrower-gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// B: S4 Driver.
	driver := s4.NewDriver(s4.Config{
		PortName:     cfg.SerialPort,
		PollInterval: cfg.PollInterval,
		ActiveSubset: cfg.ActiveSubset,
		DataDir:      cfg.DataDir,
	}, log.Named("s4"))

	if err := driver.Connect(); err != nil {
		log.Fatal("failed to connect to S4", zap.Error(err))
	}

	// D: FTMS peripheral, fed from the driver's datapoints$.
	ftmsServer := ftms.NewServer(peripheral.NewRealAdapter(), log.Named("ftms"))
	go ftmsServer.Feed(ctx, driver)
	go func() {
		if err := ftmsServer.Run(ctx); err != nil {
			log.Error("ftms peripheral stopped", zap.Error(err))
		}
	}()

	// C: HRM central (optional; absence of a configured device just
	// means the session runs without heart-rate samples).
	hrmClient := hrm.NewClient(central.NewRealAdapter(), log.Named("hrm"))

	// E: Training Session, merging B and C.
	trainingSession := session.NewSession(session.Config{}, driver, hrmClient, log.Named("session"))
	if err := trainingSession.Start(); err != nil {
		log.Fatal("failed to start training session", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Reverse start order: E, D, C, B.
	if _, err := trainingSession.Stop(); err != nil {
		log.Error("error stopping training session", zap.Error(err))
	}
	trainingSession.Close()

	cancel()

	if err := hrmClient.Disconnect(); err != nil {
		log.Error("error disconnecting HRM client", zap.Error(err))
	}
	hrmClient.Close()

	// driver.Close() was already invoked by Session.Stop(); calling it
	// again here is a deliberate no-op (Close is idempotent).
	if err := driver.Close(); err != nil {
		log.Error("error closing S4 driver", zap.Error(err))
	}

	log.Info("waterrower-gateway stopped")
}
