package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/webhook"
)

// Batches runs batch searches in the background and keeps their jobs
// queryable for the configured TTL.
type Batches struct {
	svc      *Service
	cfg      config.BatchConfig
	notifier *webhook.Notifier

	jobs sync.Map // id -> *models.BatchJob
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewBatches creates the job store and starts expiring old jobs.
func NewBatches(svc *Service, cfg config.BatchConfig, notifier *webhook.Notifier) *Batches {
	b := &Batches{
		svc:      svc,
		cfg:      cfg,
		notifier: notifier,
		stop:     make(chan struct{}),
	}
	go b.expireLoop(5 * time.Minute)
	return b
}

// Close stops the expiry loop and waits for running jobs to finish.
func (b *Batches) Close() {
	b.once.Do(func() { close(b.stop) })
	b.wg.Wait()
}

// Post returns a handler for POST /api/v1/batch/search.
func (b *Batches) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest,
				models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		if len(req.Queries) > b.cfg.MaxQueries {
			respondError(c, http.StatusBadRequest, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("maximum %d queries per batch", b.cfg.MaxQueries), nil))
			return
		}
		queries := make([]string, len(req.Queries))
		for i, raw := range req.Queries {
			q, err := parseQuery(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, err)
				return
			}
			queries[i] = q
		}

		job := models.NewBatchJob(uuid.NewString(), len(queries), time.Now().Unix())
		b.jobs.Store(job.ID, job)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.run(job, queries, req.WebhookURL, req.WebhookSecret)
		}()

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchProcessing,
			Total:  job.Total,
		})
	}
}

// Get returns a handler for GET /api/v1/batch/:id.
func (b *Batches) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := b.jobs.Load(c.Param("id"))
		if !ok {
			respondError(c, http.StatusNotFound,
				models.NewScrapeError(models.ErrCodeNotFound, "batch job not found", nil))
			return
		}
		c.JSON(http.StatusOK, val.(*models.BatchJob).Snapshot())
	}
}

// run searches every query with at most cfg.Concurrency searches in flight.
func (b *Batches) run(job *models.BatchJob, queries []string, webhookURL, secret string) {
	concurrency := b.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job.Record(idx, b.svc.Search(context.Background(), query))
		}(i, q)
	}
	wg.Wait()

	status := job.Finish()
	slog.Info("batch job finished",
		"id", job.ID,
		"status", status,
		"total", job.Total,
	)

	if webhookURL != "" && b.notifier != nil {
		snap := job.Snapshot()
		_ = b.notifier.DeliverWithRetry(context.Background(), webhookURL, secret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      snap,
		})
	}
}

func (b *Batches) expireLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.expire(time.Now())
		}
	}
}

func (b *Batches) expire(now time.Time) {
	cutoff := now.Add(-b.cfg.JobTTL).Unix()
	b.jobs.Range(func(key, value any) bool {
		job := value.(*models.BatchJob)
		if job.CreatedAt < cutoff && job.Snapshot().Status != models.BatchProcessing {
			b.jobs.Delete(key)
		}
		return true
	})
}
