package handlers

import (
	"time"

	"imagine/internal/domain"
)

type jobResponse struct {
	ID           string      `json:"id,omitempty"`
	Prompt       string      `json:"prompt,omitempty"`
	AspectRatio  string      `json:"aspect_ratio,omitempty"`
	Status       string      `json:"status"`
	Loading      bool        `json:"loading"`
	Progress     int         `json:"progress"`
	Images       []string    `json:"images"`
	ExternalID   string      `json:"external_id,omitempty"`
	PollEndpoint string      `json:"poll_endpoint,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ElapsedMS    int64       `json:"elapsed_ms,omitempty"`
	StoredID     string      `json:"stored_id,omitempty"`
	Error        *errorField `json:"error,omitempty"`
	Revision     uint64      `json:"revision"`
}

type errorField struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toJobResponse(j domain.GenerationJob) jobResponse {
	resp := jobResponse{
		ID:           j.ID,
		Prompt:       j.Prompt,
		AspectRatio:  string(j.AspectRatio),
		Status:       string(j.Status),
		Loading:      j.Loading(),
		Progress:     j.Progress,
		Images:       j.Images,
		ExternalID:   j.ExternalID,
		PollEndpoint: j.PollEndpoint,
		CompletedAt:  j.CompletedAt,
		ElapsedMS:    j.Elapsed().Milliseconds(),
		StoredID:     j.StoredID,
		Revision:     j.Revision,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if !j.StartedAt.IsZero() {
		at := j.StartedAt
		resp.StartedAt = &at
	}
	if j.ErrorMessage != "" {
		resp.Error = &errorField{Code: j.ErrorKind, Message: j.ErrorMessage}
	}
	return resp
}

type generationResponse struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"external_id,omitempty"`
	PollEndpoint string    `json:"poll_endpoint,omitempty"`
	Prompt       string    `json:"prompt"`
	AspectRatio  string    `json:"aspect_ratio"`
	Images       []string  `json:"images"`
	OwnerID      string    `json:"owner_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toGenerationResponse(g domain.StoredGeneration) generationResponse {
	images := g.Images
	if images == nil {
		images = []string{}
	}
	return generationResponse{
		ID:           g.ID,
		ExternalID:   g.ExternalID,
		PollEndpoint: g.PollEndpoint,
		Prompt:       g.Prompt,
		AspectRatio:  string(g.AspectRatio),
		Images:       images,
		OwnerID:      g.OwnerID,
		CreatedAt:    g.CreatedAt,
	}
}

type aspectRatioResponse struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Ratio   string `json:"ratio"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}
