// Package handlers implements an in-memory development backend that speaks
// the generation RPC contract.
package handlers

import (
	"encoding/json"
	"net/http"

	"genclient/internal/infra"
	"genclient/internal/storage"
)

type App struct {
	Jobs   *JobBook
	Files  *storage.FileStore
	Logger infra.Logger

	MaxUploadBytes int64
}

func NewApp(jobs *JobBook, files *storage.FileStore, logger infra.Logger) *App {
	return &App{Jobs: jobs, Files: files, Logger: logger, MaxUploadBytes: 110 << 20}
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) result(w http.ResponseWriter, data any) {
	a.json(w, http.StatusOK, map[string]any{"result": map[string]any{"data": data}})
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Message: message, Code: code}})
}

// baseURL reconstructs the externally visible root of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
