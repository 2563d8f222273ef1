package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/profile"
	"github.com/srg/healthlink/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE health devices",
	Long: `Scan for Bluetooth Low Energy devices nearby and list them strongest signal
first. Devices advertising a heart rate, pulse oximeter or known vendor service
are tagged in the HEALTH column.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanNamePrefix  string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVar(&scanNamePrefix, "name-prefix", "", "Only show devices whose name starts with this prefix")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := loadConfig(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := cfg.BLE.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	adapter, err := newAdapter(logger)
	if err != nil {
		return err
	}
	s, err := scanner.NewScanner(adapter, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	opts := &scanner.ScanOptions{
		Duration:        duration,
		DuplicateFilter: scanNoDuplicate,
		NamePrefix:      scanNamePrefix,
		ServiceUUIDs:    device.NormalizeUUIDs(scanServices),
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	var progress func(string)
	if isTerminal(cmd.ErrOrStderr()) {
		p := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", duration, "Processing results")
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	devices, err := s.Scan(ctx, opts, progress)
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevicesTable(cmd.OutOrStdout(), devices)
}

// healthTags names the health profiles an advertisement announces.
func healthTags(adv device.Advertisement) string {
	known := []struct {
		uuid string
		tag  string
	}{
		{profile.HeartRateService, "HR"},
		{profile.PulseOximeterService, "PLX"},
		{profile.ForaService, "FORA"},
		{profile.AcareService, "Acare"},
	}

	var tags []string
	for _, k := range known {
		for _, svc := range adv.Services() {
			if device.SameUUID(svc, k.uuid) {
				tags = append(tags, k.tag)
				break
			}
		}
	}
	return strings.Join(tags, ",")
}

func displayDevicesTable(out io.Writer, devices []device.Advertisement) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tHEALTH\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, adv := range devices {
		name := displayName(adv.LocalName())
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(adv.Services(), ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\n",
			name, adv.Addr(), adv.RSSI(), healthTags(adv), services)
	}

	return w.Flush()
}

type deviceJSON struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	RSSI        int      `json:"rssi"`
	Connectable bool     `json:"connectable"`
	Services    []string `json:"services"`
	Health      string   `json:"health,omitempty"`
}

func displayDevicesJSON(out io.Writer, devices []device.Advertisement) error {
	list := make([]deviceJSON, len(devices))
	for i, adv := range devices {
		list[i] = deviceJSON{
			Name:        adv.LocalName(),
			Address:     adv.Addr(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
			Services:    adv.Services(),
			Health:      healthTags(adv),
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
