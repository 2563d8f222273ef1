package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// exploreCmd represents the explore command
var exploreCmd = &cobra.Command{
	Use:   "explore [device-address]",
	Short: "Dump services, characteristics and readable values",
	Long: `Connects to a device and lists every service and characteristic with its
properties. Readable characteristics are read and shown as hex, which helps
identify vendor-specific measurement channels.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplore,
}

var (
	exploreTarget targetFlags
	exploreJSON   bool
)

func init() {
	exploreTarget.register(exploreCmd)
	exploreCmd.Flags().BoolVar(&exploreJSON, "json", false, "Output as JSON")
}

func runExplore(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess, _, err := openSession(ctx, cmd, cfg, logger, exploreTarget.requestOptions(args, cfg))
	if err != nil {
		return err
	}
	defer func() { _ = sess.Disconnect(context.Background()) }()

	inv, err := sess.Explore(ctx)
	if err != nil {
		return err
	}
	return printInventory(cmd.OutOrStdout(), inv, exploreJSON)
}
