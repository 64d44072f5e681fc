package repo

import (
	"context"
	"net/http"

	"imagine/internal/adapter/postgrest"
	"imagine/internal/domain"
	"imagine/internal/infra"
)

// Open selects the history store from cfg: Postgres when DATABASE_URL is set,
// the Supabase REST gateway when its URL and key are set, Disabled otherwise.
// The returned func releases the backend.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (domain.GenerationRepository, func(), error) {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	switch cfg.PersistenceBackend() {
	case "postgres":
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("backend", "postgres").Msg("history store ready")
		return NewGenerationRepository(infra.NewSQLRunner(pool, logger)), pool.Close, nil
	case "postgrest":
		client := postgrest.NewClient(postgrest.Options{
			BaseURL:    cfg.SupabaseURL,
			APIKey:     cfg.SupabaseAnonKey,
			Table:      cfg.GenerationsTable,
			HTTPClient: &http.Client{Timeout: cfg.PersistTimeout},
			Logger:     logger,
		})
		logger.Info().Str("backend", "postgrest").Str("table", cfg.GenerationsTable).Msg("history store ready")
		return client, func() {}, nil
	default:
		logger.Warn().Msg("no history store configured, results will not be saved")
		return Disabled{}, func() {}, nil
	}
}
