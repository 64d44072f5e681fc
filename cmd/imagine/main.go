// Command imagine generates images from the terminal and browses the saved
// history.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"imagine/internal/adapter/repo"
	"imagine/internal/domain"
	"imagine/internal/infra"
)

func main() {
	if err := newRootCommand(&env{}).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// env holds what the subcommands share. Fields set before Execute are kept,
// which lets tests inject a configuration and a store.
type env struct {
	cfg        *infra.Config
	logger     *infra.Logger
	store      domain.GenerationRepository
	closeStore func()
}

func (e *env) load() error {
	if e.cfg == nil {
		_ = godotenv.Load()
		cfg, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		e.cfg = cfg
	}
	if e.logger == nil {
		l := infra.NewCLILogger(e.cfg.AppEnv, e.cfg.LogLevel)
		e.logger = &l
	}
	return nil
}

func (e *env) openStore(ctx context.Context) (domain.GenerationRepository, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, closeStore, err := repo.Open(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.store, e.closeStore = store, closeStore
	return store, nil
}

func (e *env) close() {
	if e.closeStore != nil {
		e.closeStore()
		e.closeStore = nil
	}
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagine",
		Short: "Generate images from text prompts",
		Long: `imagine sends a prompt to the configured generation service, waits for the
images and keeps a history of finished generations.

Examples:
  imagine generate "a lighthouse at dusk, oil painting" --ar 16:9
  imagine generate "portrait of a fox" --ar vertical --save-dir ./out
  imagine history --page 2
  imagine ratios`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	cmd.AddCommand(
		newGenerateCommand(e),
		newHistoryCommand(e),
		newShowCommand(e),
		newDeleteCommand(e),
		newRatiosCommand(),
	)
	return cmd
}
