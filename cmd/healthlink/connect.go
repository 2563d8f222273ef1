package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/device"
	goble "github.com/srg/healthlink/internal/device/go-ble"
	"github.com/srg/healthlink/internal/session"
	"github.com/srg/healthlink/pkg/config"
)

// newAdapter opens the platform Bluetooth adapter. Tests swap it for an in-memory one.
var newAdapter = func(logger *logrus.Logger) (device.Adapter, error) {
	a, err := goble.NewAdapter(logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// targetFlags selects the peripheral a device command talks to.
type targetFlags struct {
	namePrefix string
	services   []string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.namePrefix, "name-prefix", "", "Pick the first device whose name starts with this prefix")
	cmd.Flags().StringSliceVar(&t.services, "services", nil, "Pick the first device advertising one of these service UUIDs")
}

func (t *targetFlags) requestOptions(args []string, cfg *config.Config) device.RequestOptions {
	opts := device.RequestOptions{
		NamePrefix: t.namePrefix,
		Services:   device.NormalizeUUIDs(t.services),
		Timeout:    cfg.BLE.ScanTimeout,
	}
	if len(args) > 0 {
		opts.Address = args[0]
	}
	return opts
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newSession(cfg *config.Config, logger *logrus.Logger) (*session.Session, error) {
	adapter, err := newAdapter(logger)
	if err != nil {
		return nil, err
	}

	opts := session.DefaultOptions()
	opts.Logger = logger
	opts.StartCommandDelay = cfg.BLE.StartCommandDelay
	opts.ReadCommandDelay = cfg.BLE.ReadCommandDelay
	opts.SendStartCommands = cfg.BLE.SendStartCommands
	opts.QueueSize = cfg.BLE.QueueSize
	return session.New(adapter, opts), nil
}

// openSession requests, connects and resolves a peripheral. The caller disconnects.
func openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger, opts device.RequestOptions) (*session.Session, *session.HealthContext, error) {
	sess, err := newSession(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	dev, err := sess.RequestDevice(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s (%s)...\n", displayName(dev.Name()), dev.Address())

	connectCtx, cancel := context.WithTimeout(ctx, cfg.BLE.ConnectTimeout)
	defer cancel()
	hc, err := sess.Connect(connectCtx, dev)
	if err != nil {
		return nil, nil, err
	}
	return sess, hc, nil
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
