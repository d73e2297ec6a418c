package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/concurrency"
	"github.com/rescp17/bdx/pkg/receiver"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/ui"
)

type serveOptions struct {
	port        int
	name        string
	inbox       string
	serveDir    string
	noAnnounce  bool
	keepPartial bool
	bucket      string
	prefix      string
	region      string
	endpoint    string
}

func newServeCmd(opts *options) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept and serve transfers as a BDX responder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, so)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&so.port, "port", 8080, "Port to listen on")
	flags.StringVar(&so.name, "name", "", "Instance name to announce (default: hostname)")
	flags.StringVar(&so.inbox, "inbox", "inbox", "Directory received files are written to")
	flags.StringVar(&so.serveDir, "serve-dir", "", "Directory peers may fetch files from")
	flags.BoolVar(&so.noAnnounce, "no-announce", false, "Do not announce the service over mDNS")
	flags.BoolVar(&so.keepPartial, "keep-partial", true, "Keep partial files of failed transfers for resuming")
	flags.StringVar(&so.bucket, "bucket", "", "Upload received files to this S3 bucket instead of the inbox")
	flags.StringVar(&so.prefix, "prefix", "", "Key prefix for uploaded objects")
	flags.StringVar(&so.region, "region", "us-east-1", "S3 region")
	flags.StringVar(&so.endpoint, "endpoint", "", "S3-compatible endpoint URL")
	return cmd
}

func runServe(ctx context.Context, opts *options, so *serveOptions) error {
	cfg, err := opts.transferConfig()
	if err != nil {
		return err
	}

	store := &receiver.Store{
		InboxDir:    so.inbox,
		ServeDir:    so.serveDir,
		KeepPartial: so.keepPartial,
	}
	if so.bucket != "" {
		store.InboxDir = ""
		store.Objects = newS3Client(so.region, so.endpoint)
		store.Bucket = so.bucket
		store.Prefix = so.prefix
	} else if err := util.EnsureDirectory(so.inbox); err != nil {
		return err
	}
	if so.serveDir != "" {
		exists, isDir, err := util.CheckDirectory(so.serveDir)
		if err != nil {
			return err
		}
		if !exists || !isDir {
			return fmt.Errorf("serve directory %s is not a directory", so.serveDir)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry := transfer.NewStatusRegistry()
	runner, err := newRunner(cfg,
		transfer.WithMetrics(transfer.NewMetrics(reg)),
		transfer.WithRegistry(registry),
		transfer.WithGuard(concurrency.NewConcurrencyGuard(cfg.MaxConcurrentTransfers)),
	)
	if err != nil {
		return err
	}

	app := receiver.NewApp(receiver.Config{
		Port:     so.port,
		Name:     so.name,
		Store:    store,
		Runner:   runner,
		Registry: registry,
		Gatherer: reg,
		Announce: !so.noAnnounce,
	}, nil)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if opts.noTUI {
		fmt.Printf("Serving BDX on port %d\n", so.port)
		err := app.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	final, err := tea.NewProgram(ui.NewServeModel(app), tea.WithContext(ctx)).Run()
	cancel()
	appErr := <-errCh
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(ui.ServeModel); ok && m.Err() != nil {
		return m.Err()
	}
	return appErr
}

// newS3Client builds a client from the standard AWS environment variables.
func newS3Client(region, endpoint string) *s3.Client {
	creds := aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	}))

	options := s3.Options{
		Region:      region,
		Credentials: creds,
	}
	if endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
		options.UsePathStyle = true
	}
	slog.Info("Uploading received files to S3", "region", region, "endpoint", endpoint)
	return s3.New(options)
}
