package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
)

// DeadLetterResponse is the API projection of one archive record.
type DeadLetterResponse struct {
	ID                   string          `json:"id" jsonschema:"required"`
	OriginalEnvelopeID   string          `json:"originalEnvelopeId" jsonschema:"required"`
	TaskName             string          `json:"taskName" jsonschema:"required"`
	TaskArgs             json.RawMessage `json:"taskArgs"`
	TaskKwargs           json.RawMessage `json:"taskKwargs"`
	QueueType            string          `json:"queueType"`
	Priority             string          `json:"priority"`
	CorrelationID        string          `json:"correlationId"`
	FailureReason        string          `json:"failureReason" jsonschema:"required"`
	ErrorMessage         *string         `json:"errorMessage"`
	ErrorTraceback       *string         `json:"errorTraceback"`
	TotalAttempts        int             `json:"totalAttempts"`
	ManualReviewRequired bool            `json:"manualReviewRequired" jsonschema:"required"`
	CanBeRetried         bool            `json:"canBeRetried" jsonschema:"required"`
	DLQStatus            string          `json:"dlqStatus" jsonschema:"required"`
	ResolutionAction     *string         `json:"resolutionAction"`
	ResolutionNotes      *string         `json:"resolutionNotes"`
	ResolvedBy           *string         `json:"resolvedBy"`
	ResolvedAt           *time.Time      `json:"resolvedAt"`
	CreatedAt            time.Time       `json:"createdAt" jsonschema:"required"`
}

// ListDeadLettersResponse is a filtered page of archive records.
type ListDeadLettersResponse struct {
	DeadLetters []DeadLetterResponse `json:"deadLetters" jsonschema:"required"`
	Total       int                  `json:"total" jsonschema:"required"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// RetryDeadLetterRequest carries replay overrides.
type RetryDeadLetterRequest struct {
	Priority   string  `json:"priority,omitempty"`
	MaxRetries *int    `json:"maxRetries,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// RetryDeadLetterResponse acknowledges an accepted replay.
type RetryDeadLetterResponse struct {
	RecordID      string `json:"recordId" jsonschema:"required"`
	NewEnvelopeID string `json:"newEnvelopeId" jsonschema:"required"`
}

// DiscardDeadLetterRequest closes a record without replay.
type DiscardDeadLetterRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// AnnotateDeadLetterRequest replaces the working notes on a record.
type AnnotateDeadLetterRequest struct {
	Notes string `json:"notes" jsonschema:"required"`
}

// RecoveryAuditEntry is one row of a record's audit trail.
type RecoveryAuditEntry struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Actor         string    `json:"actor"`
	Outcome       string    `json:"outcome"`
	Notes         *string   `json:"notes"`
	NewEnvelopeID *string   `json:"newEnvelopeId"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toDeadLetterResponse(r *envelope.DeadLetterRecord) DeadLetterResponse {
	resp := DeadLetterResponse{
		ID:                   r.ID,
		OriginalEnvelopeID:   r.OriginalEnvelopeID,
		TaskName:             r.TaskName,
		TaskArgs:             r.TaskArgs,
		TaskKwargs:           r.TaskKwargs,
		QueueType:            string(r.QueueType),
		Priority:             string(r.Priority),
		CorrelationID:        r.CorrelationID,
		FailureReason:        r.FailureReason,
		ErrorMessage:         r.ErrorMessage,
		ErrorTraceback:       r.ErrorTraceback,
		TotalAttempts:        r.TotalAttempts,
		ManualReviewRequired: r.ManualReviewRequired,
		CanBeRetried:         r.CanBeRetried,
		DLQStatus:            string(r.DLQStatus),
		ResolutionNotes:      r.ResolutionNotes,
		ResolvedBy:           r.ResolvedBy,
		ResolvedAt:           r.ResolvedAt,
		CreatedAt:            r.CreatedAt,
	}
	if r.ResolutionAction != nil {
		action := string(*r.ResolutionAction)
		resp.ResolutionAction = &action
	}
	return resp
}

// Operator identity for the audit trail; the gateway records it verbatim.
func operatorFrom(c *gin.Context) string {
	if actor := c.GetHeader("X-Operator-Id"); actor != "" {
		return actor
	}
	return "unknown-operator"
}

// ListDeadLetters returns a filtered page of quarantine records
// @Summary List dead letter records
// @Tags deadletters
// @Produce json
// @Param status query string false "Filter by status" Enums(quarantined, resolved)
// @Param queueType query string false "Filter by queue type"
// @Param manualReview query bool false "Only records requiring manual review"
// @Param retryable query bool false "Only records that can be replayed"
// @Param limit query int false "Number of items to return" default(50) minimum(1) maximum(200)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListDeadLettersResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/deadletters [get]
func (h *Handlers) ListDeadLetters(c *gin.Context) {
	var query struct {
		Status       string `form:"status"`
		QueueType    string `form:"queueType"`
		ManualReview bool   `form:"manualReview"`
		Retryable    bool   `form:"retryable"`
		Limit        int    `form:"limit"`
		Offset       int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Limit <= 0 || query.Limit > 200 {
		query.Limit = 50
	}

	records, total, err := h.deadLetters.ListDeadLetters(c.Request.Context(), store.DeadLetterFilter{
		Status:           envelope.DLQStatus(query.Status),
		QueueType:        envelope.QueueType(query.QueueType),
		ManualReviewOnly: query.ManualReview,
		RetryableOnly:    query.Retryable,
		Limit:            query.Limit,
		Offset:           query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letter records"})
		return
	}

	out := make([]DeadLetterResponse, 0, len(records))
	for i := range records {
		out = append(out, toDeadLetterResponse(&records[i]))
	}
	c.JSON(http.StatusOK, ListDeadLettersResponse{
		DeadLetters: out,
		Total:       total,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
}

// GetDeadLetter returns one record with its audit trail
// @Summary Get dead letter record
// @Tags deadletters
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string "Not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/deadletters/{id} [get]
func (h *Handlers) GetDeadLetter(c *gin.Context) {
	id := c.Param("id")

	record, err := h.deadLetters.GetDeadLetter(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dead letter record"})
		return
	}

	history, err := h.recovery.History(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit trail"})
		return
	}
	trail := make([]RecoveryAuditEntry, 0, len(history))
	for _, a := range history {
		trail = append(trail, RecoveryAuditEntry{
			ID:            a.ID,
			Action:        string(a.Action),
			Actor:         a.Actor,
			Outcome:       a.Outcome,
			Notes:         a.Notes,
			NewEnvelopeID: a.NewEnvelopeID,
			CreatedAt:     a.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"record": toDeadLetterResponse(record), "audit": trail})
}

// RetryDeadLetter replays a quarantined record as a fresh envelope
// @Summary Manually retry dead letter
// @Description Creates a brand-new envelope from the record and resolves it; rejected when the record cannot be replayed
// @Tags deadletters
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body RetryDeadLetterRequest false "Replay overrides"
// @Success 201 {object} RetryDeadLetterResponse
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Record cannot be retried or is already resolved"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/deadletters/{id}/retry [post]
func (h *Handlers) RetryDeadLetter(c *gin.Context) {
	id := c.Param("id")

	var req RetryDeadLetterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	replayed, err := h.recovery.Retry(c.Request.Context(), id, operatorFrom(c), deadletter.ReplayOverrides{
		Priority:     envelope.Priority(req.Priority),
		MaxRetries:   req.MaxRetries,
		ResolveNotes: req.Notes,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter record not found"})
	case errors.Is(err, deadletter.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "record cannot be retried"})
	case errors.Is(err, deadletter.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "record already resolved"})
	case err != nil:
		h.logger.Error().Err(err).Str("record_id", id).Msg("Failed to replay dead letter record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay record"})
	default:
		c.JSON(http.StatusCreated, RetryDeadLetterResponse{RecordID: id, NewEnvelopeID: replayed.ID})
	}
}

// DiscardDeadLetter closes a record without replaying it
// @Summary Discard dead letter
// @Tags deadletters
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body DiscardDeadLetterRequest false "Resolution notes"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Record already resolved"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/deadletters/{id}/discard [post]
func (h *Handlers) DiscardDeadLetter(c *gin.Context) {
	id := c.Param("id")

	var req DiscardDeadLetterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := h.recovery.Discard(c.Request.Context(), id, operatorFrom(c), req.Notes)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter record not found"})
	case errors.Is(err, deadletter.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "record already resolved"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to discard record"})
	default:
		c.JSON(http.StatusOK, gin.H{"recordId": id, "resolution": string(envelope.ResolutionDiscarded)})
	}
}

// AnnotateDeadLetter updates the working notes on a quarantined record
// @Summary Annotate dead letter
// @Tags deadletters
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body AnnotateDeadLetterRequest true "Review notes"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string "Record already resolved"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/deadletters/{id}/notes [patch]
func (h *Handlers) AnnotateDeadLetter(c *gin.Context) {
	id := c.Param("id")

	var req AnnotateDeadLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.recovery.Annotate(c.Request.Context(), id, operatorFrom(c), req.Notes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to annotate record"})
		return
	}
	if !updated {
		c.JSON(http.StatusConflict, gin.H{"error": "record already resolved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordId": id, "success": true})
}
