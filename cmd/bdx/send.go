package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/sender"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/ui"
)

func newSendCmd(opts *options) *cobra.Command {
	var designator string
	var retries int
	cmd := &cobra.Command{
		Use:   "send <target> <file>",
		Short: "Push a file to a responder",
		Long: "Push a file to a responder. The target is a ws:// URL or the name\n" +
			"of an instance announced on the local network.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			so := sender.SendOptions{Target: args[0], Path: args[1], Designator: designator}
			title := fmt.Sprintf("Sending %s", args[1])
			return runTransfer(cmd.Context(), opts, retries, title, func(app *sender.App) sender.Operation {
				return func(ctx context.Context) (*transfer.Result, error) {
					return app.SendFile(ctx, so)
				}
			})
		},
	}
	cmd.Flags().StringVar(&designator, "as", "", "File designator to send under (default: file name)")
	cmd.Flags().IntVar(&retries, "retries", -1, "Retry limit (default: from the configuration)")
	return cmd
}

func newFetchCmd(opts *options) *cobra.Command {
	fo := sender.FetchOptions{}
	var retries int
	cmd := &cobra.Command{
		Use:   "fetch <target> <designator>",
		Short: "Pull a file from a responder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fo.Target, fo.Designator = args[0], args[1]
			title := fmt.Sprintf("Fetching %s", args[1])
			return runTransfer(cmd.Context(), opts, retries, title, func(app *sender.App) sender.Operation {
				return func(ctx context.Context) (*transfer.Result, error) {
					return app.FetchFile(ctx, fo)
				}
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&fo.Output, "output", "o", "", "Output file (default: designator's base name)")
	flags.Uint64Var(&fo.StartOffset, "offset", 0, "Start offset into the file")
	flags.Uint64Var(&fo.MaxLength, "length", 0, "Maximum number of bytes to fetch")
	flags.Uint64Var(&fo.Skip, "skip", 0, "Bytes to skip after the start offset (receiver-drive)")
	flags.BoolVar(&fo.Resume, "resume", false, "Resume from a checkpoint and keep partial output")
	flags.StringVar(&fo.SHA256, "sha256", "", "Expected SHA-256 of the whole file")
	flags.IntVar(&retries, "retries", -1, "Retry limit (default: from the configuration)")
	return cmd
}

// runTransfer runs one send or fetch with the progress view, or plainly with
// --no-tui.
func runTransfer(ctx context.Context, opts *options, retries int, title string, build func(*sender.App) sender.Operation) error {
	cfg, err := opts.transferConfig()
	if err != nil {
		return err
	}
	if cfg.DefaultRetryPolicy == nil {
		cfg.DefaultRetryPolicy = transfer.DefaultRetryPolicy()
	}
	if retries >= 0 {
		cfg.DefaultRetryPolicy.MaxRetries = retries
	}
	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}
	app := sender.NewApp(sender.Config{
		Runner: runner,
		Retry:  transfer.NewRetryScheduler(nil, cfg.DefaultRetryPolicy),
	}, nil)
	op := build(app)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if opts.noTUI {
		res, err := op(ctx)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := app.Run(ctx, op)
		errCh <- err
	}()

	final, err := tea.NewProgram(ui.NewTransferModel(title, app), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-errCh
		return err
	}
	// The view quits once the transfer is done, or early when killed.
	cancel()
	runErr := <-errCh
	if m, ok := final.(ui.TransferModel); ok && m.Result() != nil {
		printResult(m.Result())
	}
	return runErr
}

func printResult(res *transfer.Result) {
	if res == nil {
		return
	}
	fmt.Printf("%s: %s in %s (%s, %d blocks)\n",
		res.FileDesignator,
		util.FormatSize(res.Bytes),
		res.Duration.Round(time.Millisecond),
		util.FormatRate(res.Bytes, res.Duration),
		res.Blocks)
}
