package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/cipher"
	"github.com/srg/healthlink/internal/proxy"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the encrypted FORA API gateway",
	Long: `Serves POST /fora-api/{path} and forwards each JSON body to the FORA backend
AES encrypted with the key for that path. Responses are decrypted and returned
as JSON.

Examples:
  healthlink serve
  healthlink serve --listen 127.0.0.1:8080 --config healthlink.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen   string
	serveUpstream string
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :3000)")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "FORA backend origin (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, logrus.InfoLevel)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Proxy.Listen = serveListen
	}
	if serveUpstream != "" {
		cfg.Proxy.Upstream = serveUpstream
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	router, err := proxy.NewRouter(proxy.Options{
		Upstream:     cfg.Proxy.Upstream,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
		Breaker:      cfg.Breaker,
		Client:       proxy.NewHTTPClient(cfg.Proxy.ConnTimeout, cfg.Proxy.ResponseTimeout),
		Gateway:      cipher.NewGateway(logger),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return proxy.NewServer(cfg, router, logger).Start(ctx)
}
