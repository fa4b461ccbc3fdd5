package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
)

// EnqueueEnvelopeRequest is the producer intake payload.
type EnqueueEnvelopeRequest struct {
	QueueType         string          `json:"queueType" jsonschema:"required"`
	Priority          string          `json:"priority,omitempty"`
	TaskName          string          `json:"taskName" jsonschema:"required"`
	TaskArgs          json.RawMessage `json:"taskArgs,omitempty"`
	TaskKwargs        json.RawMessage `json:"taskKwargs,omitempty"`
	CorrelationID     string          `json:"correlationId,omitempty"`
	IdempotencyKey    *string         `json:"idempotencyKey,omitempty"`
	MaxRetries        *int            `json:"maxRetries,omitempty"`
	RetryDelaySeconds int             `json:"retryDelaySeconds,omitempty"`
	ScheduledFor      *time.Time      `json:"scheduledFor,omitempty"`
	Source            string          `json:"source,omitempty"`
}

// EnqueueEnvelopeResponse acknowledges an accepted envelope.
type EnqueueEnvelopeResponse struct {
	ID     string `json:"id" jsonschema:"required"`
	Status string `json:"status" jsonschema:"required"`
}

// EnvelopeResponse is the API projection of one envelope.
type EnvelopeResponse struct {
	ID                string          `json:"id" jsonschema:"required"`
	CorrelationID     string          `json:"correlationId"`
	IdempotencyKey    *string         `json:"idempotencyKey"`
	QueueType         string          `json:"queueType" jsonschema:"required"`
	Priority          string          `json:"priority"`
	TaskName          string          `json:"taskName" jsonschema:"required"`
	TaskArgs          json.RawMessage `json:"taskArgs"`
	TaskKwargs        json.RawMessage `json:"taskKwargs"`
	Status            string          `json:"status" jsonschema:"required"`
	Attempts          int             `json:"attempts"`
	MaxRetries        int             `json:"maxRetries"`
	RetryDelaySeconds int             `json:"retryDelaySeconds"`
	ScheduledFor      time.Time       `json:"scheduledFor"`
	ErrorMessage      *string         `json:"errorMessage"`
	ErrorTraceback    *string         `json:"errorTraceback"`
	Source            string          `json:"source"`
	CreatedAt         time.Time       `json:"createdAt" jsonschema:"required"`
	CompletedAt       *time.Time      `json:"completedAt"`
}

// ListEnvelopesResponse is a filtered page of envelopes.
type ListEnvelopesResponse struct {
	Envelopes []EnvelopeResponse `json:"envelopes" jsonschema:"required"`
	Total     int                `json:"total" jsonschema:"required"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ReportOutcomeRequest is the executor callback payload.
type ReportOutcomeRequest struct {
	Outcome        string  `json:"outcome" jsonschema:"required"` // completed | failed
	ErrorMessage   string  `json:"errorMessage,omitempty"`
	ErrorTraceback *string `json:"errorTraceback,omitempty"`
}

func toEnvelopeResponse(e *envelope.TaskEnvelope) EnvelopeResponse {
	return EnvelopeResponse{
		ID:                e.ID,
		CorrelationID:     e.CorrelationID,
		IdempotencyKey:    e.IdempotencyKey,
		QueueType:         string(e.QueueType),
		Priority:          string(e.Priority),
		TaskName:          e.TaskName,
		TaskArgs:          e.TaskArgs,
		TaskKwargs:        e.TaskKwargs,
		Status:            string(e.Status),
		Attempts:          e.Attempts,
		MaxRetries:        e.MaxRetries,
		RetryDelaySeconds: e.RetryDelaySeconds,
		ScheduledFor:      e.ScheduledFor,
		ErrorMessage:      e.ErrorMessage,
		ErrorTraceback:    e.ErrorTraceback,
		Source:            e.Source,
		CreatedAt:         e.CreatedAt,
		CompletedAt:       e.CompletedAt,
	}
}

// EnqueueEnvelope accepts one unit of asynchronous work
// @Summary Enqueue task envelope
// @Description Persists a new task envelope in pending status for the scheduler to dispatch
// @Tags envelopes
// @Accept json
// @Produce json
// @Param request body EnqueueEnvelopeRequest true "Envelope to enqueue"
// @Success 201 {object} EnqueueEnvelopeResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/envelopes [post]
func (h *Handlers) EnqueueEnvelope(c *gin.Context) {
	var req EnqueueEnvelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	priority := envelope.Priority(req.Priority)
	if req.Priority == "" {
		priority = envelope.PriorityNormal
	}
	maxRetries := 3
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	e := &envelope.TaskEnvelope{
		CorrelationID:     req.CorrelationID,
		IdempotencyKey:    req.IdempotencyKey,
		QueueType:         envelope.QueueType(req.QueueType),
		Priority:          priority,
		TaskName:          req.TaskName,
		TaskArgs:          req.TaskArgs,
		TaskKwargs:        req.TaskKwargs,
		MaxRetries:        maxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
		Source:            req.Source,
	}
	if req.ScheduledFor != nil {
		e.ScheduledFor = *req.ScheduledFor
	}

	if err := e.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.envelopes.EnqueueEnvelope(c.Request.Context(), e)
	if err != nil {
		h.logger.Error().Err(err).Str("task", req.TaskName).Msg("Failed to enqueue envelope")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue envelope"})
		return
	}

	c.JSON(http.StatusCreated, EnqueueEnvelopeResponse{ID: id, Status: string(envelope.StatusPending)})
}

// GetEnvelope returns one envelope
// @Summary Get task envelope
// @Tags envelopes
// @Produce json
// @Param id path string true "Envelope ID"
// @Success 200 {object} EnvelopeResponse
// @Failure 404 {object} map[string]string "Not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/envelopes/{id} [get]
func (h *Handlers) GetEnvelope(c *gin.Context) {
	e, err := h.envelopes.GetEnvelope(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "envelope not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load envelope"})
		return
	}
	c.JSON(http.StatusOK, toEnvelopeResponse(e))
}

// ListEnvelopes returns a filtered page of envelopes
// @Summary List task envelopes
// @Tags envelopes
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, dispatching, retrying, failed, completed, cancelled, dead_letter)
// @Param queueType query string false "Filter by queue type"
// @Param limit query int false "Number of items to return" default(50) minimum(1) maximum(200)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListEnvelopesResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/envelopes [get]
func (h *Handlers) ListEnvelopes(c *gin.Context) {
	var query struct {
		Status    string `form:"status"`
		QueueType string `form:"queueType"`
		Limit     int    `form:"limit"`
		Offset    int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Limit <= 0 || query.Limit > 200 {
		query.Limit = 50
	}

	envelopes, total, err := h.envelopes.ListEnvelopes(c.Request.Context(), store.EnvelopeFilter{
		Status:    envelope.Status(query.Status),
		QueueType: envelope.QueueType(query.QueueType),
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list envelopes"})
		return
	}

	out := make([]EnvelopeResponse, 0, len(envelopes))
	for i := range envelopes {
		out = append(out, toEnvelopeResponse(&envelopes[i]))
	}
	c.JSON(http.StatusOK, ListEnvelopesResponse{
		Envelopes: out,
		Total:     total,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
}

// ReportOutcome receives the executor's completion or failure report
// @Summary Report task outcome
// @Description Executor callback: closes the envelope on success, or records the failure and classifies it
// @Tags envelopes
// @Accept json
// @Produce json
// @Param id path string true "Envelope ID"
// @Param request body ReportOutcomeRequest true "Execution outcome"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/envelopes/{id}/report [post]
func (h *Handlers) ReportOutcome(c *gin.Context) {
	id := c.Param("id")

	var req ReportOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Outcome {
	case "completed":
		applied, err := h.intake.ReportSuccess(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record completion"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "applied": applied})

	case "failed":
		if req.ErrorMessage == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "errorMessage is required for failed outcome"})
			return
		}
		err := h.intake.ReportFailure(c.Request.Context(), id, req.ErrorMessage, req.ErrorTraceback)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "envelope not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record failure"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "applied": true})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be completed or failed"})
	}
}

// CancelEnvelope stops future scheduling of an envelope
// @Summary Cancel task envelope
// @Description Prevents future dispatch; work already handed to the broker cannot be recalled
// @Tags envelopes
// @Produce json
// @Param id path string true "Envelope ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string "Envelope already settled"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/envelopes/{id}/cancel [post]
func (h *Handlers) CancelEnvelope(c *gin.Context) {
	id := c.Param("id")

	cancelled, err := h.envelopes.CancelEnvelope(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel envelope"})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "envelope already settled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": string(envelope.StatusCancelled)})
}
