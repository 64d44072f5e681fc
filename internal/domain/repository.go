package domain

import "context"

// GenerationRepository persists completed generations.
type GenerationRepository interface {
	SaveResult(ctx context.Context, gen *StoredGeneration) (*StoredGeneration, error)
	ListResults(ctx context.Context, filter ListFilter) ([]StoredGeneration, error)
	FindResult(ctx context.Context, id string) (*StoredGeneration, error)
	DeleteResult(ctx context.Context, id string) error
}
