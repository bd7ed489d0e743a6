package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getburrow/burrow/pkg/cli/internal/output"
	"github.com/getburrow/burrow/pkg/config"
	"github.com/getburrow/burrow/pkg/forward"
	"github.com/getburrow/burrow/pkg/history"
	"github.com/getburrow/burrow/pkg/inspect"
	"github.com/getburrow/burrow/pkg/logging"
	"github.com/getburrow/burrow/pkg/middleware"
	"github.com/getburrow/burrow/pkg/relay"
	"github.com/getburrow/burrow/pkg/relay/quic"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runFlagVals is the package-level instance bound to cobra flags.
var runFlagVals runFlags

// runFlags holds the command-line values for the run command. Set flags
// override the configuration file and environment; unset flags leave the
// loaded values alone.
type runFlags struct {
	backendURL  string
	relayURL    string
	token       string
	tunnel      string
	inspectAddr string
	noInspect   bool
	authToken   string
	authBasic   string
	allowIPs    string
	logLevel    string
	logFormat   string
	insecureTLS bool
	noReconnect bool
}

// relayTransport is the surface shared by the WebSocket and QUIC relay
// clients. The run command drives whichever one the relay URL selects.
type relayTransport interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Close()
	IsConnected() bool
	PublicURL() string
	Tunnel() string
	Stats() *relay.Stats
	SetLogger(log *slog.Logger)
}

var runCmd = &cobra.Command{
	Use:   "run [backend-url]",
	Short: "Connect the tunnel and forward traffic to a local backend",
	Long: `Connect to the relay and expose a locally running HTTP service.

The backend URL can be given as a positional argument or with --backend;
it defaults to ` + config.DefaultBackendURL + `. The relay URL scheme selects
the transport: wss (or ws) for WebSocket, quic for QUIC.

Configuration is read from burrow.yaml (or the file named by --config),
overridden by BURROW_* environment variables, overridden by flags.`,
	Example: `  # Expose localhost:3000 under an auto-assigned name
  burrow run --token YOUR_TOKEN

  # Expose a specific backend under a specific tunnel name
  burrow run http://localhost:8080 --token YOUR_TOKEN --tunnel my-api

  # Require a token from visitors
  burrow run --token YOUR_TOKEN --auth-token VISITOR_SECRET

  # QUIC transport against a development relay
  burrow run --relay quic://localhost:4443 --insecure-tls --token YOUR_TOKEN`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			runFlagVals.backendURL = args[0]
		}
		return runTunnel(&runFlagVals)
	},
}

func initRunCmd() {
	rootCmd.AddCommand(runCmd)

	f := &runFlagVals

	runCmd.Flags().StringVarP(&f.backendURL, "backend", "b", "", "Local backend URL to forward to")
	runCmd.Flags().StringVar(&f.relayURL, "relay", "", "Relay server URL (wss:// or quic://)")
	runCmd.Flags().StringVar(&f.token, "token", "", "Authentication token (or set BURROW_TOKEN)")
	runCmd.Flags().StringVarP(&f.tunnel, "tunnel", "t", "", "Requested tunnel name (auto-assigned if empty)")

	runCmd.Flags().StringVar(&f.inspectAddr, "inspect-addr", "", "Inspector listen address (default: "+config.DefaultInspectAddr+")")
	runCmd.Flags().BoolVar(&f.noInspect, "no-inspect", false, "Disable the local inspector API")

	// Authentication for incoming requests (optional protection)
	runCmd.Flags().StringVar(&f.authToken, "auth-token", "", "Require this token for incoming requests")
	runCmd.Flags().StringVar(&f.authBasic, "auth-basic", "", "Require Basic Auth (format: user:pass)")
	runCmd.Flags().StringVar(&f.allowIPs, "allow-ips", "", "Allow only these IPs (comma-separated CIDR or IP)")

	runCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")

	runCmd.Flags().BoolVar(&f.insecureTLS, "insecure-tls", false, "Skip relay certificate verification (development relays)")
	runCmd.Flags().BoolVar(&f.noReconnect, "no-reconnect", false, "Exit instead of reconnecting when the connection drops")
}

func init() {
	initRunCmd()
}

// applyFlags lays explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config, f *runFlags) {
	if f.backendURL != "" {
		cfg.Backend.URL = f.backendURL
	}
	if f.relayURL != "" {
		cfg.Relay.URL = f.relayURL
	}
	if f.token != "" {
		cfg.Relay.Token = f.token
	}
	if f.tunnel != "" {
		cfg.Relay.Tunnel = f.tunnel
	}
	if f.inspectAddr != "" {
		cfg.Inspect.Addr = f.inspectAddr
	}
	if f.noInspect {
		cfg.Inspect.Enabled = false
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if f.insecureTLS {
		cfg.Relay.TLSInsecure = true
	}
	if f.noReconnect {
		cfg.Relay.Reconnect = false
	}
}

// buildRelayConfig converts the file-level relay section plus the auth flags
// into the client configuration.
func buildRelayConfig(cfg *config.Config, f *runFlags) (*relay.Config, error) {
	relayCfg := relay.DefaultConfig().
		WithRelayURL(cfg.Relay.URL).
		WithToken(cfg.Relay.Token).
		WithTunnel(cfg.Relay.Tunnel)

	relayCfg.PingInterval = cfg.Relay.PingIntervalDuration()
	relayCfg.AutoReconnect = cfg.Relay.Reconnect
	relayCfg.TLSInsecure = cfg.Relay.TLSInsecure
	relayCfg.ClientVersion = Version

	switch {
	case f.authToken != "":
		relayCfg.WithTokenAuth(f.authToken)
		fmt.Println("Request authentication: token required")
	case f.authBasic != "":
		parts := strings.SplitN(f.authBasic, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --auth-basic format, expected user:pass")
		}
		relayCfg.WithBasicAuth(parts[0], parts[1])
		fmt.Println("Request authentication: Basic Auth required")
	case f.allowIPs != "":
		ips := strings.Split(f.allowIPs, ",")
		for i := range ips {
			ips[i] = strings.TrimSpace(ips[i])
		}
		relayCfg.WithIPAuth(ips)
		fmt.Printf("Request authentication: IP whitelist (%d entries)\n", len(ips))
	}

	return relayCfg, nil
}

// runTunnel wires configuration, forwarding engine, inspector, and relay
// client together and blocks until a shutdown signal.
func runTunnel(f *runFlags) error {
	path := configFile
	if path == "" {
		path = config.Find()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Relay.Token == "" {
		return fmt.Errorf("authentication token required (use --token or set %s)", config.EnvToken)
	}

	logCfg := logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	}
	log := logging.New(logCfg)

	// Add a file handler if a log file is configured
	if cfg.Logging.File != "" {
		logFile, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		fileCfg := logCfg
		fileCfg.Output = logFile
		log = slog.New(logging.NewMultiHandler(log.Handler(), logging.NewHandler(fileCfg)))
	}

	chain, err := middleware.BuildChain(cfg.Rules)
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}

	ledger := history.NewLedger(history.LogObserver{Log: log})

	var inspector *inspect.Server
	if cfg.Inspect.Enabled {
		inspector = inspect.New(inspect.Config{
			Addr:    cfg.Inspect.Addr,
			Ledger:  ledger,
			Backend: cfg.Backend.URL,
			Version: Version,
		})
		inspector.SetLogger(log)
		ledger.SetObserver(history.MultiObserver{
			history.LogObserver{Log: log},
			inspector.Observer(),
		})
	}

	engine, err := forward.New(forward.Config{
		BackendURL: cfg.Backend.URL,
		Chain:      chain,
		Ledger:     ledger,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("configure forwarding: %w", err)
	}

	relayCfg, err := buildRelayConfig(cfg, f)
	if err != nil {
		return err
	}

	relayCfg.OnConnect = func(publicURL string) {
		fmt.Printf("\nTunnel connected!\n")
		fmt.Printf("Public URL: %s\n", publicURL)
		fmt.Printf("Forwarding to: %s\n", cfg.Backend.URL)
		if inspector != nil {
			fmt.Printf("Inspector: http://%s\n", inspector.Addr())
		}
		fmt.Println("\nPress Ctrl+C to stop")
	}
	relayCfg.OnDisconnect = func(err error) {
		if err != nil {
			fmt.Printf("\nTunnel disconnected: %v\n", err)
		} else {
			fmt.Println("\nTunnel disconnected")
		}
	}
	relayCfg.OnRequest = func(method, path string) {
		fmt.Printf("  %s %s\n", method, path)
	}

	var client relayTransport
	if strings.HasPrefix(cfg.Relay.URL, "quic://") {
		client, err = quic.NewClient(relayCfg, engine)
	} else {
		client, err = relay.NewClient(relayCfg, engine)
	}
	if err != nil {
		return fmt.Errorf("create relay client: %w", err)
	}
	client.SetLogger(log)

	if inspector != nil {
		inspector.SetSource(client)
		if err := inspector.Start(); err != nil {
			return fmt.Errorf("start inspector: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first connect fails fast so a bad token or unreachable relay
	// surfaces immediately; reconnection only covers later drops.
	fmt.Printf("Connecting to relay at %s...\n", cfg.Relay.URL)
	if err := client.Connect(ctx); err != nil {
		if inspector != nil {
			_ = inspector.Stop()
		}
		return fmt.Errorf("connect tunnel: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return driveTransport(gctx, client, relayCfg, cfg.Relay.Reconnect, log)
	})

	// Wait for shutdown signal or terminal transport failure
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			client.Close()
		case <-gctx.Done():
		}
		return nil
	})

	exitErr := g.Wait()

	// Print final stats
	stats := client.Stats()
	fmt.Printf("\nSession stats:\n")
	fmt.Printf("  Requests served: %d\n", stats.RequestsServed)
	fmt.Printf("  Bytes in: %d\n", stats.BytesIn)
	fmt.Printf("  Bytes out: %d\n", stats.BytesOut)
	fmt.Printf("  Uptime: %s\n", stats.Uptime())
	if stats.RequestsServed > 0 {
		fmt.Printf("  Avg latency: %.2f ms\n", stats.AvgLatencyMs())
	}

	if inspector != nil {
		if err := inspector.Stop(); err != nil {
			output.Warn("inspector shutdown error: %v", err)
		}
	}

	if exitErr != nil {
		return fmt.Errorf("tunnel: %w", exitErr)
	}
	fmt.Println("Goodbye!")
	return nil
}

// driveTransport runs the relay client until it stops for good. The
// WebSocket client reconnects internally, so its Run only returns on
// shutdown; the QUIC client surfaces connection loss instead, and this
// loop redials it with backoff while reconnection is enabled.
func driveTransport(ctx context.Context, client relayTransport, relayCfg *relay.Config, reconnect bool, log *slog.Logger) error {
	delay := relayCfg.ReconnectDelay

	for {
		started := time.Now()
		err := client.Run(ctx)
		if err == nil || !reconnect || ctx.Err() != nil {
			return err
		}

		// A connection that held for a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			delay = relayCfg.ReconnectDelay
		}
		log.Warn("tunnel connection lost", "error", err, "retry_in", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > relayCfg.MaxReconnectDelay {
			delay = relayCfg.MaxReconnectDelay
		}
	}
}
