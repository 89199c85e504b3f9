package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/podium-go/config"
	"github.com/s0up4200/podium-go/podium"
	"github.com/s0up4200/podium-go/session"
)

var (
	cfgFile  string
	cfg      *config.Config
	logger   zerolog.Logger
	sessions *session.FileStore
	client   *podium.Client

	// Build information, set from main
	version   = "dev"
	buildTime = "unknown"

	// Global flags
	forceLegacy bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "podium",
	Short: "Command line client for the Podium API",
	Long: `podium talks to a Podium server from the terminal. Log in once with
"podium login"; the session token is kept on disk and reused by every
other command until it is rejected by the server or you log out.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion records the build information reported by the version command
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceLegacy, "legacy", false, "use legacy pagination parameter names")
}

// initializeApp loads the configuration and builds the session store and client
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = setupLogger(cfg.Logging)

	if cmd.Flags().Changed("legacy") {
		cfg.Podium.Legacy = forceLegacy
	}

	sessions, err = session.NewFileStore(cfg.Session.File, logger)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	client, err = newClient(cfg.Podium, sessions, logger)
	if err != nil {
		return fmt.Errorf("failed to create Podium client: %w", err)
	}

	if sess, ok := sessions.Session(); ok && !sameEndpoint(sess.Endpoint, client.Endpoint()) {
		logger.Warn().
			Str("session_endpoint", sess.Endpoint).
			Str("endpoint", client.Endpoint()).
			Msg("Stored session belongs to another server, discarding it")
		sessions.RemoveToken()
	}

	logger.Debug().
		Str("endpoint", client.Endpoint()).
		Bool("legacy", client.Legacy()).
		Str("session", sessions.Path()).
		Msg("Podium client ready")

	return nil
}

// newClient builds a Podium client from the config section
func newClient(pc config.PodiumConfig, tokens podium.TokenStore, log zerolog.Logger) (*podium.Client, error) {
	opts := []podium.Option{
		podium.WithLogger(log),
		podium.WithTimeout(pc.Timeout),
		podium.WithLegacy(pc.LegacyMode()),
		podium.WithTokenStore(tokens),
	}
	if pc.UserAgent != "" {
		opts = append(opts, podium.WithUserAgent(pc.UserAgent))
	} else {
		opts = append(opts, podium.WithUserAgent(podium.DefaultUserAgent+"/"+version))
	}

	return podium.NewClient(pc.Endpoint, opts...)
}

// sameEndpoint compares base URLs ignoring a trailing slash. Sessions saved
// without an endpoint match any server.
func sameEndpoint(stored, current string) bool {
	if stored == "" {
		return true
	}
	return strings.TrimRight(stored, "/") == strings.TrimRight(current, "/")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isTerminal(os.Stderr),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
