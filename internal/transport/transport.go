// Package transport hands accepted envelopes to the execution broker. The
// contract is deliberately narrow so brokers can be swapped without the
// scheduler noticing: submit one task to one named queue, or say why not.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnavailable marks broker connectivity failures. Such errors are an
// infrastructure condition: they are never written into envelope state,
// the scheduler unclaims the envelope and retries on a later tick.
var ErrUnavailable = errors.New("transport unavailable")

// SubmitRequest is one task handed to the broker. EnvelopeID rides along so
// the executor can report the outcome back against the right envelope.
type SubmitRequest struct {
	EnvelopeID     string
	CorrelationID  string
	IdempotencyKey string
	TaskName       string
	Args           json.RawMessage
	Kwargs         json.RawMessage
	Queue          string
}

// Transport submits tasks for execution. A nil return means the broker
// acknowledged the message, not that a worker ran it. Errors wrapping
// ErrUnavailable mean the broker could not be reached; any other error is
// a rejection of this particular task and goes through classification.
type Transport interface {
	Submit(ctx context.Context, req SubmitRequest) error
	Ping(ctx context.Context) error
}

// wireMessage is the payload both transports publish. Executors echo
// envelope_id back when reporting the outcome.
type wireMessage struct {
	EnvelopeID     string          `json:"envelope_id"`
	CorrelationID  string          `json:"correlation_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Task           string          `json:"task"`
	Args           json.RawMessage `json:"args"`
	Kwargs         json.RawMessage `json:"kwargs"`
	Queue          string          `json:"queue"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

func newWireMessage(req SubmitRequest) wireMessage {
	args := req.Args
	if args == nil {
		args = []byte("[]")
	}
	kwargs := req.Kwargs
	if kwargs == nil {
		kwargs = []byte("{}")
	}
	return wireMessage{
		EnvelopeID:     req.EnvelopeID,
		CorrelationID:  req.CorrelationID,
		IdempotencyKey: req.IdempotencyKey,
		Task:           req.TaskName,
		Args:           args,
		Kwargs:         kwargs,
		Queue:          req.Queue,
		EnqueuedAt:     time.Now().UTC(),
	}
}
