package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/bdx/pkg/transfer"
)

// options holds the flags shared by every command.
type options struct {
	configPath     string
	verbose        bool
	noTUI          bool
	blockSize      uint16
	messageTimeout time.Duration
	checkpointDir  string
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "bdx",
		Short: "Bulk Data Exchange transfers over the local network",
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "JSON transfer configuration file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr instead of debug.log")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "Print plain output instead of the interactive view")
	flags.Uint16Var(&opts.blockSize, "block-size", 0, "Proposed block size in bytes")
	flags.DurationVar(&opts.messageTimeout, "timeout", 0, "Time to wait for each peer message")
	flags.StringVar(&opts.checkpointDir, "checkpoint-dir", "", "Directory for resume checkpoints")

	var closeLog func()
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		closer, err := setupLogging(opts.verbose)
		if err != nil {
			return err
		}
		closeLog = closer
		return nil
	}

	cmd.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newFetchCmd(opts),
		newDiscoverCmd(),
		newStatusCmd(),
	)

	err := fang.Execute(context.Background(), cmd)
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging sends logs to debug.log so they stay out of the TUI, or to
// stderr in verbose mode.
func setupLogging(verbose bool) (func(), error) {
	if verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		return func() {}, nil
	}

	f, err := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		// Logging is best effort.
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}, nil
}

// transferConfig loads the configuration file and applies flag overrides.
func (o *options) transferConfig() (*transfer.TransferConfig, error) {
	cfg := transfer.DefaultTransferConfig()
	if o.configPath != "" {
		loaded, err := transfer.LoadTransferConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.blockSize != 0 {
		cfg.BlockSize = o.blockSize
	}
	if o.messageTimeout != 0 {
		cfg.MessageTimeout = o.messageTimeout
	}
	if o.checkpointDir != "" {
		cfg.CheckpointDir = o.checkpointDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRunner builds a runner that checkpoints when configured.
func newRunner(cfg *transfer.TransferConfig, extra ...transfer.Option) (*transfer.Runner, error) {
	opts := []transfer.Option{transfer.WithLogger(slog.Default())}
	if cfg.CheckpointDir != "" {
		store, err := transfer.NewCheckpointStore(cfg.CheckpointDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, transfer.WithCheckpoints(store))
	}
	return transfer.NewRunner(cfg, append(opts, extra...)...)
}
