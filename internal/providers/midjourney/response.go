package midjourney

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Job status values reported by the service.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusErrored   = "error"
)

// Response is the normalized shape of both submit and poll answers.
type Response struct {
	ID         string
	Status     string
	PollingURL string
	Message    string
	// Results holds the image URLs in service order, without duplicates.
	Results []string
}

// Completed reports a finished job that produced at least one image.
func (r *Response) Completed() bool {
	return r.Status == StatusCompleted && len(r.Results) > 0
}

// Failed reports a job the service gave up on.
func (r *Response) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusErrored
}

type wireResponse struct {
	ID              json.RawMessage   `json:"id"`
	Status          string            `json:"status"`
	PollingURL      string            `json:"pollingUrl"`
	PollingURLSnake string            `json:"polling_url"`
	Message         string            `json:"message"`
	Results         []json.RawMessage `json:"results"`
}

func decodeResponse(raw []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("midjourney: decode response: %w", err)
	}
	pollingURL := strings.TrimSpace(wire.PollingURL)
	if pollingURL == "" {
		pollingURL = strings.TrimSpace(wire.PollingURLSnake)
	}
	return &Response{
		ID:         decodeID(wire.ID),
		Status:     strings.ToLower(strings.TrimSpace(wire.Status)),
		PollingURL: pollingURL,
		Message:    strings.TrimSpace(wire.Message),
		Results:    NormalizeResults(wire.Results),
	}, nil
}

// decodeID accepts string and numeric ids.
func decodeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// NormalizeResults turns raw result entries into URL strings and removes
// duplicates, keeping the first occurrence. Strings are taken as is, objects
// contribute their url or src field, any other object is kept as compact JSON.
// Nulls and empty strings are dropped.
func NormalizeResults(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		value := resultString(item)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func resultString(item json.RawMessage) string {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || bytes.Equal(item, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		URL string `json:"url"`
		Src string `json:"src"`
	}
	if item[0] == '{' {
		if err := json.Unmarshal(item, &obj); err == nil {
			if u := strings.TrimSpace(obj.URL); u != "" {
				return u
			}
			if u := strings.TrimSpace(obj.Src); u != "" {
				return u
			}
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, item); err != nil {
		return string(item)
	}
	return compact.String()
}
