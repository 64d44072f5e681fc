package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"imagine/internal/domain"
	"imagine/internal/infra"
	"imagine/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository on Postgres.
type GenerationRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGenerationRepository creates a repository over a marked-SQL executor.
func NewGenerationRepository(db infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{db: db}
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)

// SaveResult inserts a completed generation and returns it with the
// server-assigned id and creation time.
func (r *GenerationRepositoryPG) SaveResult(ctx context.Context, gen *domain.StoredGeneration) (*domain.StoredGeneration, error) {
	if gen == nil {
		return nil, fmt.Errorf("save generation: nil record")
	}
	images, err := json.Marshal(imagesOrEmpty(gen.Images))
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	out := *gen
	out.Images = append([]string(nil), gen.Images...)
	row := r.db.QueryRow(ctx, sqlinline.QInsertGeneration,
		uuid.NewString(),
		gen.ExternalID,
		gen.PollEndpoint,
		gen.Prompt,
		string(gen.AspectRatio),
		string(images),
		gen.OwnerID,
	)
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}
	return &out, nil
}

// ListResults returns one page of generations, newest first. The owner filter
// applies unless IncludeAll is set.
func (r *GenerationRepositoryPG) ListResults(ctx context.Context, filter domain.ListFilter) ([]domain.StoredGeneration, error) {
	filter = filter.Normalize()
	owner := strings.TrimSpace(filter.OwnerID)
	if filter.IncludeAll {
		owner = ""
	}
	rows, err := r.db.Query(ctx, sqlinline.QListGenerations, owner, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredGeneration
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return out, nil
}

// FindResult loads a single generation by id.
func (r *GenerationRepositoryPG) FindResult(ctx context.Context, id string) (*domain.StoredGeneration, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	gen, err := scanGeneration(r.db.QueryRow(ctx, sqlinline.QSelectGenerationByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return gen, nil
}

// DeleteResult removes a generation permanently.
func (r *GenerationRepositoryPG) DeleteResult(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteGeneration, id)
	if err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanGeneration(row pgx.Row) (*domain.StoredGeneration, error) {
	var (
		gen       domain.StoredGeneration
		ratio     string
		images    []byte
		createdAt time.Time
	)
	if err := row.Scan(
		&gen.ID,
		&gen.ExternalID,
		&gen.PollEndpoint,
		&gen.Prompt,
		&ratio,
		&images,
		&gen.OwnerID,
		&createdAt,
	); err != nil {
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	gen.AspectRatio = domain.AspectRatio(ratio)
	gen.CreatedAt = createdAt
	decoded, err := decodeImages(images)
	if err != nil {
		return nil, err
	}
	gen.Images = decoded
	return &gen, nil
}

// decodeImages accepts a JSON array of strings; legacy rows may hold objects
// with a url field.
func decodeImages(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		return urls, nil
	}
	var objects []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		if o.URL != "" {
			out = append(out, o.URL)
		}
	}
	return out, nil
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
