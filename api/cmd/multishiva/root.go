// Package multishiva is the CLI entry point: it loads Config from the
// environment and wires it into either HostLoop or AgentLoop depending
// on MULTISHIVA_MODE. Grounded in the teacher's
// api/cmd/lilysaas/root.go + serve.go: the same NewRootCmd/Execute/
// FatalErrorHandler shape, and the same signal.NotifyContext-driven
// run-until-interrupted serve() pattern, narrowed from an HTTP server
// to multishiva's capture/inject loops.
package multishiva

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/multishiva/multishiva/api/pkg/agentloop"
	"github.com/multishiva/multishiva/api/pkg/config"
	"github.com/multishiva/multishiva/api/pkg/discovery"
	"github.com/multishiva/multishiva/api/pkg/fingerprint"
	"github.com/multishiva/multishiva/api/pkg/hostloop"
	"github.com/multishiva/multishiva/api/pkg/inputbackend"
)

var Fatal = FatalErrorHandler

func init() { //nolint:gochecknoinits
	NewRootCmd()
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "multishiva",
		Long:  "LAN software KVM: share one keyboard and mouse across machines by crossing screen edges.",
	}

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOutput(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		Fatal(rootCmd, err.Error(), 1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run as host or agent, per MULTISHIVA_MODE",
		Long:  "Run as host or agent, per MULTISHIVA_MODE.\n\nEnvironment:\n" + generateEnvHelpText(config.Config{}, "  "),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
}

func run(cmd *cobra.Command) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	if runtime.GOOS != "linux" {
		return fmt.Errorf("multishiva run: only linux is supported (input capture/injection require evdev/uinput/Wayland)")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	logger = logger.With().Str("self", cfg.SelfName).Str("mode", string(cfg.Mode)).Logger()

	ctx := cmd.Context()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	stateDir, err := defaultStateDir()
	if err != nil {
		return err
	}
	fps, err := fingerprint.Load(filepath.Join(stateDir, "fingerprints.json"), logger)
	if err != nil {
		return fmt.Errorf("multishiva: load fingerprint store: %w", err)
	}
	logger = logger.With().Str("session", fps.SessionID()).Logger()

	dir := discovery.New(cfg.SelfName, logger)

	// NewLinuxBackend wants a screen size for its absolute-position
	// clamp; evdev alone cannot query the display server for the real
	// one, so a common full-HD default is used for the life of the
	// process: the Linux backend's ScreenSize keeps reporting it, even
	// though HostLoop polls ScreenSize on every capture tick (REDESIGN
	// FLAG Q3).
	backend, err := inputbackend.NewLinuxBackend(logger, 1920, 1080)
	if err != nil {
		return fmt.Errorf("multishiva: build input backend: %w", err)
	}
	defer backend.Close()

	switch cfg.Mode {
	case config.ModeHost:
		loop := hostloop.New(cfg, backend, fps, dir, logger)
		return loop.Run(ctx)
	case config.ModeAgent:
		loop := agentloop.New(cfg, backend, fps, dir, logger)
		return loop.Run(ctx)
	default:
		return fmt.Errorf("multishiva: unknown mode %q", cfg.Mode)
	}
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("multishiva: resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "multishiva")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("multishiva: create state dir: %w", err)
	}
	return dir, nil
}
