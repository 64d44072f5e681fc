package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imagine/internal/domain"
	"imagine/internal/generation"
	"imagine/internal/providers/midjourney"
	"imagine/internal/storage"
	"imagine/internal/validation"
	"imagine/pkg/zip"
)

type generateOptions struct {
	aspectRatio string
	saveDir     string
	zipPath     string
	timeout     time.Duration
	quiet       bool
}

func newGenerateCommand(e *env) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images for a prompt and wait for the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, cmd, e, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.aspectRatio, "ar", "", "aspect ratio: 1:1, 3:2, 16:9, 21:9, 2:3, 9:16 or a name from 'imagine ratios'")
	cmd.Flags().StringVar(&opts.saveDir, "save-dir", "", "download the images below this directory (defaults to IMAGE_DOWNLOAD_DIR)")
	cmd.Flags().StringVar(&opts.zipPath, "zip", "", "also bundle the downloaded images into this zip archive")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall polling budget (defaults to POLL_TIMEOUT_SECONDS)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only print image URLs")
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, e *env, opts generateOptions, prompt string) error {
	ratio, err := validation.ParseAspectRatio(opts.aspectRatio)
	if err != nil {
		return err
	}
	if err := e.cfg.RequireGenerationAPI(); err != nil {
		return err
	}
	store, err := e.openStore(ctx)
	if err != nil {
		return err
	}

	pollTimeout := e.cfg.PollTimeout
	if opts.timeout > 0 {
		pollTimeout = opts.timeout
	}
	progress := newProgressPrinter(cmd.ErrOrStderr(), opts.quiet)
	ctrl := generation.NewController(generation.Options{
		Client: midjourney.NewClient(midjourney.Options{
			BaseURL:        e.cfg.MJAPIURL,
			Logger:         e.logger,
			RequestTimeout: e.cfg.RequestTimeout,
		}),
		Store:          store,
		Logger:         e.logger,
		PollInterval:   e.cfg.PollInterval,
		PollTimeout:    pollTimeout,
		PersistTimeout: e.cfg.PersistTimeout,
		OwnerID:        e.cfg.OwnerID,
		OnChange:       progress.print,
	})
	defer ctrl.Close()

	job, err := ctrl.Start(ctx, prompt, ratio)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, u := range job.Images {
		fmt.Fprintln(out, u)
	}
	if !opts.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Generated %d image(s) in %s\n", len(job.Images), job.Elapsed().Round(100*time.Millisecond))
		if job.StoredID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved to history as %s\n", job.StoredID)
		}
	}

	saveDir := opts.saveDir
	if saveDir == "" {
		saveDir = e.cfg.ImageDownloadDir
	}
	if len(job.Images) == 0 || (saveDir == "" && opts.zipPath == "") {
		return nil
	}
	keep := saveDir != ""
	if !keep {
		tmp, err := os.MkdirTemp("", "imagine-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		saveDir = tmp
	}
	files, err := storage.NewFileStore(saveDir)
	if err != nil {
		return err
	}
	mirror := storage.NewMirror(files, &http.Client{Timeout: e.cfg.RequestTimeout}, e.logger)
	keys, err := mirror.Fetch(ctx, job.ID, job.Images)
	if err != nil {
		return fmt.Errorf("download images: %w", err)
	}
	members := make([]zip.File, 0, len(keys))
	for _, key := range keys {
		path, err := files.Path(key)
		if err != nil {
			return err
		}
		members = append(members, zip.File{Name: key, Path: path})
		if keep && !opts.quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Downloaded %s\n", filepath.Clean(path))
		}
	}
	if opts.zipPath == "" {
		return nil
	}
	if err := zip.WriteFile(opts.zipPath, members); err != nil {
		return err
	}
	if !opts.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", opts.zipPath)
	}
	return nil
}

// progressPrinter renders controller notifications. Notifications may arrive
// out of order, so anything older than the last printed revision is dropped.
type progressPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	quiet  bool
	last   uint64
	status domain.JobStatus
	pct    int
}

func newProgressPrinter(out io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{out: out, quiet: quiet}
}

func (p *progressPrinter) print(job domain.GenerationJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if job.Revision <= p.last {
		return
	}
	p.last = job.Revision
	if p.quiet || (job.Status == p.status && job.Progress == p.pct) {
		return
	}
	p.status, p.pct = job.Status, job.Progress
	switch job.Status {
	case domain.JobStatusFailed:
		fmt.Fprintf(p.out, "[failed] %s\n", job.ErrorMessage)
	case domain.JobStatusCancelled:
		fmt.Fprintln(p.out, "[cancelled]")
	default:
		fmt.Fprintf(p.out, "[%s] %3d%%\n", job.Status, job.Progress)
	}
}
