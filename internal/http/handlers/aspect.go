package handlers

import (
	"net/http"

	"imagine/internal/domain"
)

func (a *App) AspectRatios(w http.ResponseWriter, r *http.Request) {
	out := make([]aspectRatioResponse, 0, len(domain.AspectRatioOptions))
	for _, opt := range domain.AspectRatioOptions {
		out = append(out, aspectRatioResponse{
			Name:    opt.Name,
			Value:   string(opt.Value),
			Ratio:   opt.Value.Ratio(),
			Label:   opt.Label,
			Default: opt.Value == domain.DefaultAspectRatio,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": out})
}
