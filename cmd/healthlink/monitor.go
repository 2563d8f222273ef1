package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/notify"
	"github.com/srg/healthlink/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-address]",
	Short: "Stream live measurements from a health device",
	Long: `Connects to a heart rate monitor or pulse oximeter, subscribes to every
supported characteristic and prints each decoded measurement until Ctrl+C.

Without an address the strongest connectable device is used, unless
--name-prefix or --services narrow the choice.

Examples:
  healthlink monitor
  healthlink monitor AA:BB:CC:DD:EE:FF --format json
  healthlink monitor --name-prefix "FORA" --fora-start=false
  healthlink monitor --history 500 --duration 5m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorTarget    targetFlags
	monitorFormat    string
	monitorForaStart bool
	monitorHistory   uint32
	monitorDuration  time.Duration
	monitorStream    bool
)

// connectionPollInterval is how often monitor checks for a dropped link.
var connectionPollInterval = time.Second

func init() {
	monitorTarget.register(monitorCmd)
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", formatAuto, "Output format (auto, text, json)")
	monitorCmd.Flags().BoolVar(&monitorForaStart, "fora-start", true, "Send the FORA start-command sequence after subscribing")
	monitorCmd.Flags().Uint32Var(&monitorHistory, "history", 0, "Keep the last N measurements and print a summary on exit (0 disables)")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 runs until Ctrl+C)")
	monitorCmd.Flags().BoolVar(&monitorStream, "stream", false, "Reassemble BerryMed packets split across Acare notifications")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := validateFormat(monitorFormat); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fora-start") {
		cfg.BLE.SendStartCommands = monitorForaStart
	}

	var recorder *session.Recorder
	if monitorHistory > 0 {
		if recorder, err = session.NewRecorder(monitorHistory); err != nil {
			return err
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if monitorDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	sess, hc, err := openSession(ctx, cmd, cfg, logger, monitorTarget.requestOptions(args, cfg))
	if err != nil {
		return err
	}
	defer func() { _ = sess.Disconnect(context.Background()) }()

	if !hc.HasMeasurementSource() {
		_ = printInventory(cmd.ErrOrStderr(), hc.Inventory, false)
		return ErrNoHealthProfile
	}

	printer := newMeasurementPrinter(cmd.OutOrStdout(), monitorFormat)
	started := startStreams(ctx, sess, hc, printer, recorder, logger)
	if started == 0 {
		return fmt.Errorf("%w: every subscription failed", ErrNoHealthProfile)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Monitoring %d characteristic(s), press Ctrl+C to stop\n", started)

	err = waitForDisconnect(ctx, hc)

	if recorder != nil {
		printHistory(cmd.ErrOrStderr(), recorder)
	}
	return err
}

// startStreams subscribes to every resolved measurement source and returns how many
// subscriptions are live. Failures are logged and skipped.
func startStreams(ctx context.Context, sess *session.Session, hc *session.HealthContext, printer *measurementPrinter, recorder *session.Recorder, logger *logrus.Logger) int {
	type starter struct {
		name  string
		start func() (notify.Stopper, error)
	}

	var starters []starter
	if hc.HeartRate != nil {
		starters = append(starters, starter{"heart_rate", func() (notify.Stopper, error) {
			return sess.StartHeartRate(ctx, hc.HeartRate, session.Tee(recorder, func(m codec.HeartRate) {
				printer.Print("heart_rate", m)
			}))
		}})
	}
	if hc.PulseOximeter != nil {
		source := "plx_continuous"
		if hc.SpotCheck {
			source = "plx_spot_check"
		}
		starters = append(starters, starter{source, func() (notify.Stopper, error) {
			return sess.StartPulseOximeter(ctx, hc.PulseOximeter, session.Tee(recorder, func(m codec.PulseOximeter) {
				printer.Print(source, m)
			}))
		}})
	}
	if hc.ForaCustom != nil {
		starters = append(starters, starter{"fora", func() (notify.Stopper, error) {
			return sess.StartForaCustom(ctx, hc.ForaCustom, session.Tee(recorder, func(m codec.VendorCustom) {
				printer.Print("fora", m)
			}))
		}})
	}
	if hc.AcareData != nil {
		starters = append(starters, starter{"acare", func() (notify.Stopper, error) {
			return sess.StartAcareCustom(ctx, hc.AcareData, hc.AcareCommand, hc.AcareSecondary,
				session.Tee(recorder, func(m codec.VendorCustom) {
					printer.Print("acare", m)
				}), monitorStream)
		}})
	}

	started := 0
	for _, s := range starters {
		if _, err := s.start(); err != nil {
			logger.WithError(err).WithField("stream", s.name).Warn("Failed to start notifications")
			continue
		}
		started++
	}
	return started
}

// waitForDisconnect blocks until ctx ends (a normal stop) or the link drops.
func waitForDisconnect(ctx context.Context, hc *session.HealthContext) error {
	ticker := time.NewTicker(connectionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !hc.Device.IsConnected() {
				return ErrConnectionLost
			}
		}
	}
}

// printHistory summarises the recorded measurements per kind.
func printHistory(w io.Writer, recorder *session.Recorder) {
	records, err := recorder.Drain()
	if err != nil {
		fmt.Fprintf(w, "History incomplete: %v\n", err)
	}
	metrics := recorder.Metrics()

	counts := make(map[string]int)
	last := make(map[string]session.Record)
	for _, r := range records {
		counts[r.Kind]++
		last[r.Kind] = r
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "\nRecorded %d measurement(s), %d kept, %d overwritten\n",
		metrics.Recorded, len(records), metrics.Overwritten)
	for _, k := range kinds {
		summary, _ := summarize(last[k].Measurement)
		fmt.Fprintf(w, "  %-15s %5d  last %s at %s\n", k, counts[k], summary, last[k].Time.Format("15:04:05"))
	}
}
