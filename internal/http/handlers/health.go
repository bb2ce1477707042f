package handlers

import (
	"net/http"
	"time"
)

type healthReport struct {
	Status     string `json:"status"`
	Jobs       int    `json:"jobs"`
	ActiveJobs int    `json:"active_jobs"`
	Credits    int    `json:"credits"`
	Time       string `json:"time"`
}

// Health reports liveness plus a summary of the job ledger.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	total, active := a.Jobs.Counts()
	a.json(w, http.StatusOK, healthReport{
		Status:     "ok",
		Jobs:       total,
		ActiveJobs: active,
		Credits:    a.Jobs.Balance(),
		Time:       time.Now().UTC().Format(time.RFC3339),
	})
}
