package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ratelimit-gateway/middleware/ratelimit"
)

func newRouter(decider ratelimit.Decider, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Decider: decider,
		Logger:  logger,
	}))

	r.Get("/api", handleAPI)
	r.Post("/api/submit", handleSubmit)
	return r
}

func handleAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Request successful!",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func handleSubmit(w http.ResponseWriter, r *http.Request) {
	var data any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Data submitted successfully!",
		"data":    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
