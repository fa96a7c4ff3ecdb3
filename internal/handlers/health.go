package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/courseauth/internal/handlers/render"
	"github.com/nkiryanov/courseauth/internal/logger"
)

const healthTimeout = 2 * time.Second

type HealthResponse struct {
	Status string `json:"status"`
}

func handleHealth(db pinger, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			l.Warn("health check failed", "error", err)
			render.JSONWithStatus(w, HealthResponse{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}

		render.JSON(w, HealthResponse{Status: "ok"})
	}
}
