// Package postgrest stores generations through a Supabase REST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imagine/internal/domain"
	"imagine/internal/infra"
)

const selectColumns = "id,api_id,polling_url,prompt,aspect_ratio,images,user_id,created_at"

// Options configures the REST gateway.
type Options struct {
	BaseURL    string
	APIKey     string
	Table      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client implements domain.GenerationRepository over PostgREST.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

var _ domain.GenerationRepository = (*Client)(nil)

type row struct {
	ID          json.RawMessage `json:"id,omitempty"`
	APIID       *string         `json:"api_id"`
	PollingURL  *string         `json:"polling_url"`
	Prompt      string          `json:"prompt"`
	AspectRatio string          `json:"aspect_ratio"`
	Images      json.RawMessage `json:"images"`
	UserID      *string         `json:"user_id,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewClient constructs a gateway for table under BaseURL/rest/v1.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = "generations"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + "/rest/v1/" + url.PathEscape(table),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}
}

// SaveResult inserts gen and returns the stored representation.
func (c *Client) SaveResult(ctx context.Context, gen *domain.StoredGeneration) (*domain.StoredGeneration, error) {
	if gen == nil {
		return nil, fmt.Errorf("postgrest: nil record")
	}
	images, err := json.Marshal(imagesOrEmpty(gen.Images))
	if err != nil {
		return nil, fmt.Errorf("postgrest: encode images: %w", err)
	}
	payload := row{
		APIID:       nullable(gen.ExternalID),
		PollingURL:  nullable(gen.PollEndpoint),
		Prompt:      gen.Prompt,
		AspectRatio: string(gen.AspectRatio),
		Images:      images,
		UserID:      nullable(gen.OwnerID),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("postgrest: encode request: %w", err)
	}
	query := url.Values{}
	query.Set("select", "id,created_at")
	rows, err := c.do(ctx, http.MethodPost, query, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("postgrest: insert returned no rows")
	}
	out := *gen
	out.Images = append([]string(nil), gen.Images...)
	out.ID = decodeID(rows[0].ID)
	if rows[0].CreatedAt != nil {
		out.CreatedAt = *rows[0].CreatedAt
	}
	return &out, nil
}

// ListResults returns one page, newest first.
func (c *Client) ListResults(ctx context.Context, filter domain.ListFilter) ([]domain.StoredGeneration, error) {
	filter = filter.Normalize()
	query := url.Values{}
	query.Set("select", selectColumns)
	query.Set("order", "created_at.desc")
	query.Set("offset", strconv.Itoa(filter.Offset()))
	query.Set("limit", strconv.Itoa(filter.PageSize))
	if owner := strings.TrimSpace(filter.OwnerID); owner != "" && !filter.IncludeAll {
		query.Set("user_id", "eq."+owner)
	}
	rows, err := c.do(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredGeneration, 0, len(rows))
	for _, r := range rows {
		gen, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *gen)
	}
	return out, nil
}

// FindResult loads one generation by id.
func (c *Client) FindResult(ctx context.Context, id string) (*domain.StoredGeneration, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	query := url.Values{}
	query.Set("select", selectColumns)
	query.Set("id", "eq."+id)
	query.Set("limit", "1")
	rows, err := c.do(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0].toDomain()
}

// DeleteResult removes a generation permanently.
func (c *Client) DeleteResult(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrNotFound
	}
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("select", "id")
	rows, err := c.do(ctx, http.MethodDelete, query, nil)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, query url.Values, body []byte) ([]row, error) {
	endpoint := c.endpoint
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("postgrest: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("postgrest: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("postgrest: read response: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("postgrest: request")

	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("postgrest: %s (%s)", detail.Message, detail.Code)
		}
		return nil, fmt.Errorf("postgrest: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("postgrest: decode response: %w", err)
	}
	return rows, nil
}

func (r row) toDomain() (*domain.StoredGeneration, error) {
	gen := &domain.StoredGeneration{
		ID:          decodeID(r.ID),
		Prompt:      r.Prompt,
		AspectRatio: domain.AspectRatio(r.AspectRatio),
	}
	if r.APIID != nil {
		gen.ExternalID = *r.APIID
	}
	if r.PollingURL != nil {
		gen.PollEndpoint = *r.PollingURL
	}
	if r.UserID != nil {
		gen.OwnerID = *r.UserID
	}
	if r.CreatedAt != nil {
		gen.CreatedAt = *r.CreatedAt
	}
	if len(r.Images) > 0 && string(r.Images) != "null" {
		var images []string
		if err := json.Unmarshal(r.Images, &images); err != nil {
			return nil, fmt.Errorf("postgrest: decode images: %w", err)
		}
		gen.Images = images
	}
	return gen, nil
}

func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func nullable(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
