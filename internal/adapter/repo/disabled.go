package repo

import (
	"context"

	"imagine/internal/domain"
)

// Disabled is the history store used when no backend is configured.
type Disabled struct{}

var _ domain.GenerationRepository = Disabled{}

func (Disabled) SaveResult(context.Context, *domain.StoredGeneration) (*domain.StoredGeneration, error) {
	return nil, domain.ErrPersistenceDisabled
}

func (Disabled) ListResults(context.Context, domain.ListFilter) ([]domain.StoredGeneration, error) {
	return nil, domain.ErrPersistenceDisabled
}

func (Disabled) FindResult(context.Context, string) (*domain.StoredGeneration, error) {
	return nil, domain.ErrPersistenceDisabled
}

func (Disabled) DeleteResult(context.Context, string) error {
	return domain.ErrPersistenceDisabled
}
