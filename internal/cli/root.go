// Package cli implements the genctl command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"genclient/internal/archive"
	"genclient/internal/credits"
	"genclient/internal/domain"
	"genclient/internal/infra"
	"genclient/internal/lifecycle"
	"genclient/internal/rpc"
	"genclient/internal/storage"
	"genclient/internal/submit"
	"genclient/internal/upload"
	"genclient/internal/workflow"
)

// Exit codes returned by Execute.
const (
	ExitOK                  = 0
	ExitError               = 1
	ExitInsufficientCredits = 2
)

// Options lets callers inject configuration and streams. Zero values load
// the environment and use the process streams.
type Options struct {
	Config *infra.Config
	Logger *infra.Logger
	Out    io.Writer
	Err    io.Writer
}

type app struct {
	opts Options
	out  io.Writer

	apiBase string
	token   string
	outDir  string

	cfg     *infra.Config
	logger  infra.Logger
	client  *rpc.Client
	balance *credits.Balance
	store   *lifecycle.Store
	runner  *workflow.Runner
	uploads *upload.Transport
}

// NewRootCmd builds the command tree. Dependencies are wired lazily before
// any subcommand runs. Callers that run it directly should prefer Execute,
// which also stops any polling sessions once the command returns.
func NewRootCmd(opts Options) *cobra.Command {
	root, _ := newRoot(opts)
	return root
}

func newRoot(opts Options) (*cobra.Command, *app) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	a := &app{opts: opts, out: opts.Out}

	root := &cobra.Command{
		Use:           "genctl",
		Short:         "Submit generation jobs and follow them to a downloadable archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVar(&a.apiBase, "api", "", "Backend base URL (default $API_BASE_URL)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "Bearer token (default $API_TOKEN)")
	root.PersistentFlags().StringVar(&a.outDir, "out-dir", "", "Directory for downloaded archives (default $ARCHIVE_DIR)")

	root.AddCommand(
		a.creditsCmd(),
		a.estimateCmd(),
		a.generateCmd(),
		a.statusCmd(),
		a.watchCmd(),
		a.syncCmd(),
		a.downloadCmd(),
	)
	return root, a
}

// Execute runs the command line and maps the outcome to an exit code. An
// insufficient balance prints an upsell instead of a plain error.
func Execute(ctx context.Context, opts Options, args []string) int {
	code, _ := execute(ctx, opts, args)
	return code
}

func execute(ctx context.Context, opts Options, args []string) (int, *app) {
	root, a := newRoot(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	// Post-run hooks are skipped when a command fails.
	a.close()
	if err == nil {
		return ExitOK, a
	}
	errOut := root.ErrOrStderr()
	var insufficient *domain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		fmt.Fprintf(errOut, "Not enough credits: this job costs %d and your balance is %d.\n", insufficient.Required, insufficient.Balance)
		fmt.Fprintf(errOut, "Top up %d more credits to continue.\n", insufficient.Required-insufficient.Balance)
		return ExitInsufficientCredits, a
	}
	fmt.Fprintf(errOut, "error: %v\n", err)
	return ExitError, a
}

func (a *app) init(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	cfg := a.opts.Config
	if cfg == nil {
		loaded, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.apiBase != "" {
		cfg.APIBase = a.apiBase
	}
	if a.token != "" {
		cfg.APIToken = a.token
	}
	if a.outDir != "" {
		cfg.ArchiveDir = a.outDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	if a.opts.Logger != nil {
		a.logger = *a.opts.Logger
	} else {
		a.logger = infra.NewLogger(cfg.AppEnv)
	}

	client, err := rpc.NewClient(rpc.Options{
		BaseURL:        cfg.APIBase,
		Token:          cfg.APIToken,
		RequestTimeout: cfg.RequestTimeout,
		UploadClient:   &http.Client{Timeout: cfg.UploadTimeout},
		Logger:         &a.logger,
	})
	if err != nil {
		return err
	}
	a.client = client
	a.balance = credits.NewBalance(client, &a.logger)

	a.uploads, err = upload.NewTransport(upload.Options{
		Uploader: client,
		Prober:   upload.FFprobe{Path: cfg.FFprobePath},
		Logger:   &a.logger,
	})
	if err != nil {
		return err
	}
	gate, err := submit.NewGate(submit.Options{Creator: client, Balance: a.balance, Logger: &a.logger})
	if err != nil {
		return err
	}
	a.store, err = lifecycle.NewStore(lifecycle.Options{
		Client:         client,
		Interval:       cfg.PollInterval,
		StuckThreshold: cfg.StuckThreshold,
		Logger:         &a.logger,
	})
	if err != nil {
		return err
	}
	packager, err := archive.NewPackager(archive.Options{
		Fetcher:     archive.NewHTTPFetcher(cfg.RequestTimeout),
		Concurrency: cfg.ArchiveFetchConcurrency,
		Logger:      &a.logger,
	})
	if err != nil {
		return err
	}
	sink, err := a.sink(ctx)
	if err != nil {
		return err
	}
	a.runner, err = workflow.NewRunner(workflow.Options{
		Uploads:    a.uploads,
		Gate:       gate,
		Store:      a.store,
		Packager:   packager,
		Sink:       sink,
		ImageMaxMB: cfg.ImageMaxMB,
		VideoMaxMB: cfg.VideoMaxMB,
		Logger:     &a.logger,
	})
	return err
}

func (a *app) sink(ctx context.Context) (storage.Sink, error) {
	if a.cfg.MinioEnabled() {
		return storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  a.cfg.MinioEndpoint,
			AccessKey: a.cfg.MinioAccessKey,
			SecretKey: a.cfg.MinioSecretKey,
			Bucket:    a.cfg.MinioBucket,
			UseSSL:    a.cfg.MinioUseSSL,
			Prefix:    "archives",
		})
	}
	return storage.NewFileStore(a.cfg.ArchiveDir)
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}
