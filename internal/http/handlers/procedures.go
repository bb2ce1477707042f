package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genclient/internal/domain"
	"genclient/internal/middleware"
	"genclient/internal/rpc"
)

type jobIDInput struct {
	JobID int64 `json:"jobId"`
}

// Procedure dispatches POST /trpc/{procedure}.
func (a *App) Procedure(w http.ResponseWriter, r *http.Request) {
	proc := chi.URLParam(r, "procedure")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "unreadable body")
		return
	}
	switch proc {
	case rpc.ProcCreateJob:
		a.createJob(w, r, body)
	case rpc.ProcJobStatus:
		a.jobStatus(w, r, body)
	case rpc.ProcSyncJob:
		a.syncJob(w, r, body)
	case rpc.ProcGetCredits:
		a.result(w, map[string]int{"credits": a.Jobs.Balance()})
	default:
		a.error(w, http.StatusNotFound, rpc.CodeNotFound, "unknown procedure "+proc)
	}
}

func (a *App) createJob(w http.ResponseWriter, r *http.Request, body []byte) {
	var params domain.GenerationParams
	if err := json.Unmarshal(body, &params); err != nil {
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "invalid payload")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	res, err := a.Jobs.Create(params, key)
	if err != nil {
		var insufficient *domain.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			a.error(w, http.StatusPaymentRequired, rpc.CodeInsufficientCredits, insufficient.Error())
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, err.Error())
		default:
			a.error(w, http.StatusInternalServerError, rpc.CodeInternal, "failed to create job")
		}
		return
	}
	a.Logger.Info().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int64("job_id", res.JobID).
		Int("total", res.TotalItems).
		Int("credits_used", res.CreditsUsed).
		Msg("devapi: job created")
	a.result(w, res)
}

func (a *App) jobStatus(w http.ResponseWriter, r *http.Request, body []byte) {
	in, ok := a.decodeJobID(w, body)
	if !ok {
		return
	}
	snap, err := a.Jobs.Status(in.JobID, baseURL(r))
	if err != nil {
		a.error(w, http.StatusNotFound, rpc.CodeNotFound, "job not found")
		return
	}
	a.result(w, snap)
}

func (a *App) syncJob(w http.ResponseWriter, r *http.Request, body []byte) {
	in, ok := a.decodeJobID(w, body)
	if !ok {
		return
	}
	res, err := a.Jobs.Sync(in.JobID)
	if err != nil {
		a.error(w, http.StatusNotFound, rpc.CodeNotFound, "job not found")
		return
	}
	a.Logger.Info().Int64("job_id", in.JobID).Int("synced", res.Synced).Msg("devapi: job synced")
	a.result(w, res)
}

func (a *App) decodeJobID(w http.ResponseWriter, body []byte) (jobIDInput, bool) {
	var in jobIDInput
	if err := json.Unmarshal(body, &in); err != nil || in.JobID <= 0 {
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "jobId required")
		return in, false
	}
	return in, true
}
