package handlers

import (
	"fmt"
	"sync"
	"time"

	"genclient/internal/domain"
	"genclient/internal/pricing"
)

// Scenario scripts how the next created job evolves.
type Scenario struct {
	// Progress is the number of settled items reported on successive status
	// reads. The last value repeats. When empty one more item settles per read,
	// starting from zero on the first read.
	Progress []int
	// FailItems are 1-based item positions that settle as failed.
	FailItems []int
	// Stalled jobs never advance on reads; only a sync settles them.
	Stalled bool
}

type devJob struct {
	job      domain.GenerationJob
	items    []domain.GenerationItem
	scenario Scenario
	failed   map[int]bool
	settled  int
	reads    int
	syncs    int
	result   domain.CreateJobResult
}

// JobBook is the in-memory job and credit ledger behind the dev API.
type JobBook struct {
	mu        sync.Mutex
	now       func() time.Time
	balance   int
	nextJob   int64
	nextItem  int64
	jobs      map[int64]*devJob
	byKey     map[string]int64
	scenarios []Scenario
}

// NewJobBook creates a ledger holding balance credits.
func NewJobBook(balance int) *JobBook {
	return &JobBook{
		now:     time.Now,
		balance: balance,
		jobs:    make(map[int64]*devJob),
		byKey:   make(map[string]int64),
	}
}

// Balance returns the current credit balance.
func (b *JobBook) Balance() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// SetBalance overrides the credit balance.
func (b *JobBook) SetBalance(credits int) {
	b.mu.Lock()
	b.balance = credits
	b.mu.Unlock()
}

// Counts reports how many jobs exist and how many are not yet terminal.
func (b *JobBook) Counts() (total, active int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dj := range b.jobs {
		if !dj.job.Status.IsTerminal() {
			active++
		}
	}
	return len(b.jobs), active
}

// QueueScenario applies s to the next job created. Scenarios are consumed in
// the order they were queued.
func (b *JobBook) QueueScenario(s Scenario) {
	b.mu.Lock()
	b.scenarios = append(b.scenarios, s)
	b.mu.Unlock()
}

// StatusReads reports how many status reads jobID has served.
func (b *JobBook) StatusReads(jobID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dj, ok := b.jobs[jobID]; ok {
		return dj.reads
	}
	return 0
}

// Create charges for params and registers a processing job. A repeated
// idempotency key returns the original job without charging again.
func (b *JobBook) Create(params domain.GenerationParams, idempotencyKey string) (domain.CreateJobResult, error) {
	cost, err := pricing.Estimate(params)
	if err != nil {
		return domain.CreateJobResult{}, err
	}
	total, err := pricing.Items(params)
	if err != nil {
		return domain.CreateJobResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if idempotencyKey != "" {
		if id, ok := b.byKey[idempotencyKey]; ok {
			return b.jobs[id].result, nil
		}
	}
	if cost > b.balance {
		return domain.CreateJobResult{}, &domain.InsufficientCreditsError{Required: cost, Balance: b.balance}
	}
	b.balance -= cost
	b.nextJob++

	var scenario Scenario
	if len(b.scenarios) > 0 {
		scenario = b.scenarios[0]
		b.scenarios = b.scenarios[1:]
	}
	dj := &devJob{
		job: domain.GenerationJob{
			ID:         b.nextJob,
			Status:     domain.JobStatusProcessing,
			TotalItems: total,
			CreatedAt:  b.now().UTC(),
		},
		scenario: scenario,
		failed:   make(map[int]bool, len(scenario.FailItems)),
	}
	for _, pos := range scenario.FailItems {
		dj.failed[pos] = true
	}
	for _, label := range itemLabels(params, total) {
		b.nextItem++
		dj.items = append(dj.items, domain.GenerationItem{ID: b.nextItem, Status: domain.ItemStatusProcessing, Label: label})
	}
	dj.result = domain.CreateJobResult{JobID: dj.job.ID, TotalItems: total, CreditsUsed: cost}
	b.jobs[dj.job.ID] = dj
	if idempotencyKey != "" {
		b.byKey[idempotencyKey] = dj.job.ID
	}
	return dj.result, nil
}

// Status serves one status read, advancing the job per its scenario. Result
// URLs are rooted at resultBase.
func (b *JobBook) Status(jobID int64, resultBase string) (domain.JobSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dj, ok := b.jobs[jobID]
	if !ok {
		return domain.JobSnapshot{}, domain.ErrNotFound
	}
	dj.reads++
	if !dj.job.Status.IsTerminal() && !dj.scenario.Stalled {
		b.settle(dj, dj.target())
	}
	return dj.snapshot(resultBase), nil
}

// Sync reconciles a stalled job by settling all of its items. It is safe to
// repeat: a job with nothing left to reconcile reports zero changes.
func (b *JobBook) Sync(jobID int64) (domain.SyncResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dj, ok := b.jobs[jobID]
	if !ok {
		return domain.SyncResult{}, domain.ErrNotFound
	}
	dj.syncs++
	if dj.job.Status.IsTerminal() {
		return domain.SyncResult{Synced: 0, Message: "job already up to date"}, nil
	}
	if !dj.scenario.Stalled {
		return domain.SyncResult{Synced: 0, Message: "no upstream changes"}, nil
	}
	before := dj.settled
	b.settle(dj, len(dj.items))
	dj.scenario.Stalled = false
	return domain.SyncResult{Synced: dj.settled - before, Message: fmt.Sprintf("reconciled %d items", dj.settled-before)}, nil
}

// ResultReady reports whether itemID of jobID completed.
func (b *JobBook) ResultReady(jobID, itemID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	dj, ok := b.jobs[jobID]
	if !ok {
		return false
	}
	for _, item := range dj.items {
		if item.ID == itemID {
			return item.Status == domain.ItemStatusCompleted
		}
	}
	return false
}

func (dj *devJob) target() int {
	var n int
	if p := dj.scenario.Progress; len(p) > 0 {
		idx := dj.reads - 1
		if idx >= len(p) {
			idx = len(p) - 1
		}
		n = p[idx]
	} else {
		n = dj.reads - 1
	}
	return n
}

func (b *JobBook) settle(dj *devJob, target int) {
	if target > len(dj.items) {
		target = len(dj.items)
	}
	for dj.settled < target {
		pos := dj.settled + 1
		item := &dj.items[dj.settled]
		if dj.failed[pos] {
			item.Status = domain.ItemStatusFailed
			item.ErrorMessage = "provider returned no output"
		} else {
			item.Status = domain.ItemStatusCompleted
			item.ResultURL = fmt.Sprintf("/files/results/%d/%d.png", dj.job.ID, item.ID)
			dj.job.CompletedItems++
		}
		dj.settled++
	}
	status := domain.AggregateStatus(dj.items)
	if status == domain.JobStatusPending {
		status = domain.JobStatusProcessing
	}
	dj.job.Status = status
	if status.IsTerminal() && dj.job.CompletedAt == nil {
		at := b.now().UTC()
		dj.job.CompletedAt = &at
	}
	if status == domain.JobStatusFailed {
		dj.job.ErrorMessage = "all items failed"
	}
}

func (dj *devJob) snapshot(resultBase string) domain.JobSnapshot {
	items := make([]domain.GenerationItem, len(dj.items))
	copy(items, dj.items)
	for i := range items {
		if items[i].ResultURL != "" {
			items[i].ResultURL = resultBase + items[i].ResultURL
		}
	}
	return domain.JobSnapshot{
		Job:             dj.job,
		Items:           items,
		ProgressPercent: domain.ProgressPercent(dj.job.CompletedItems, dj.job.TotalItems),
	}
}

var angleNames = []string{
	"front", "back", "left", "right", "top", "bottom",
	"front left", "front right", "back left", "back right", "low angle", "high angle",
}

func itemLabels(params domain.GenerationParams, total int) []string {
	labels := make([]string, total)
	for i := range labels {
		var base string
		switch params.Mode {
		case domain.ModeMultiAngle:
			base = angleNames[i%len(angleNames)]
		case domain.ModeLogo:
			base = fmt.Sprintf("variation %d", i+1)
		default:
			base = "motion"
		}
		if params.Label != "" {
			base = params.Label + " " + base
		}
		labels[i] = base
	}
	return labels
}

// SyncCalls reports how many sync requests jobID has received.
func (b *JobBook) SyncCalls(jobID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dj, ok := b.jobs[jobID]; ok {
		return dj.syncs
	}
	return 0
}
