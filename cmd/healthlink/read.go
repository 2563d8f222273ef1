package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/session"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read [device-address]",
	Short: "Take one reading from a health device",
	Long: `Connects to a health device and reads each resolved measurement
characteristic once. Vendor characteristics get the read command (0x02) first
when they accept writes.

Examples:
  healthlink read
  healthlink read AA:BB:CC:DD:EE:FF --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRead,
}

var (
	readTarget targetFlags
	readFormat string
)

func init() {
	readTarget.register(readCmd)
	readCmd.Flags().StringVarP(&readFormat, "format", "f", formatAuto, "Output format (auto, text, json)")
}

func runRead(cmd *cobra.Command, args []string) error {
	if err := validateFormat(readFormat); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess, hc, err := openSession(ctx, cmd, cfg, logger, readTarget.requestOptions(args, cfg))
	if err != nil {
		return err
	}
	defer func() { _ = sess.Disconnect(context.Background()) }()

	if !hc.HasMeasurementSource() {
		_ = printInventory(cmd.ErrOrStderr(), hc.Inventory, false)
		return ErrNoHealthProfile
	}

	printer := newMeasurementPrinter(cmd.OutOrStdout(), readFormat)
	reads := []struct {
		source string
		ok     bool
		read   func() (codec.Measurement, error)
	}{
		{"heart_rate", hc.HeartRate != nil, func() (codec.Measurement, error) {
			return sess.ReadHeartRateOnce(ctx, hc.HeartRate)
		}},
		{"pulse_oximeter", hc.PulseOximeter != nil, func() (codec.Measurement, error) {
			return sess.ReadPulseOximeterOnce(ctx, hc.PulseOximeter)
		}},
		{"fora", hc.ForaCustom != nil, func() (codec.Measurement, error) {
			return sess.ReadForaCustomOnce(ctx, hc.ForaCustom)
		}},
		{"acare", hc.AcareData != nil, func() (codec.Measurement, error) {
			return sess.ReadAcareCustomOnce(ctx, hc.AcareData)
		}},
	}

	succeeded := 0
	var lastErr error
	for _, r := range reads {
		if !r.ok {
			continue
		}
		m, err := r.read()
		switch {
		case session.IsUnsupported(err):
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: characteristic is notify-only, use 'healthlink monitor'\n", r.source)
		case err != nil:
			lastErr = err
			logger.WithError(err).WithField("source", r.source).Warn("Read failed")
		default:
			printer.Print(r.source, m)
			succeeded++
		}
	}

	if succeeded == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}
