package models

import "sync"

// BatchRequest is the payload for POST /api/v1/batch/search.
type BatchRequest struct {
	// Queries is the list of search terms. Required.
	Queries []string `json:"queries" binding:"required,min=1,dive,required"`

	// WebhookURL receives a "batch.completed" event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/search.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Results   []*SearchReport `json:"results,omitempty"`
}

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
)

// BatchJob tracks an in-progress batch search.
type BatchJob struct {
	ID        string
	Total     int
	CreatedAt int64 // unix timestamp

	mu        sync.Mutex
	status    string
	completed int
	results   []*SearchReport
}

// NewBatchJob creates a job with one empty result slot per query.
func NewBatchJob(id string, total int, createdAt int64) *BatchJob {
	return &BatchJob{
		ID:        id,
		Total:     total,
		CreatedAt: createdAt,
		status:    BatchProcessing,
		results:   make([]*SearchReport, total),
	}
}

// Record stores the report for query idx.
func (j *BatchJob) Record(idx int, report *SearchReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = report
	j.completed++
}

// Finish marks the job done, "partial" when any report contains a failed source.
func (j *BatchJob) Finish() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = BatchCompleted
	for _, r := range j.results {
		if r == nil || r.Failed() {
			j.status = BatchPartial
			break
		}
	}
	return j.status
}

// Snapshot returns a copy safe to serialize while the job is running.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*SearchReport, len(j.results))
	copy(results, j.results)
	return BatchStatusResponse{
		ID:        j.ID,
		Status:    j.status,
		Completed: j.completed,
		Total:     j.Total,
		Results:   results,
	}
}
