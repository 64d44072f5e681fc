package domain

import "time"

// MaxPromptLength bounds prompts in characters (runes).
const MaxPromptLength = 500

// DefaultPageSize is the history page size when none is requested.
const DefaultPageSize = 8

// StoredGeneration is a completed generation as kept by the history store.
type StoredGeneration struct {
	ID           string
	ExternalID   string
	PollEndpoint string
	Prompt       string
	AspectRatio  AspectRatio
	Images       []string
	OwnerID      string
	CreatedAt    time.Time
}

// ListFilter selects a page of history, newest first. Page is zero based.
type ListFilter struct {
	OwnerID    string
	IncludeAll bool
	Page       int
	PageSize   int
}

// Normalize applies the default page size and clamps negative pages.
func (f ListFilter) Normalize() ListFilter {
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	if f.Page < 0 {
		f.Page = 0
	}
	return f
}

// Offset is the number of rows skipped before the page starts.
func (f ListFilter) Offset() int {
	return f.Page * f.PageSize
}
