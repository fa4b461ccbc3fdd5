// Package classifier decides what happens to a task after a failure report.
// Classification is a pure function of the envelope snapshot, the
// configured vocabularies and the clock passed in, so any scheduler
// replica reaches the same verdict for the same failure.
package classifier

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bookline/task-service/internal/envelope"
)

// Action is what the scheduler should do with a failed envelope.
type Action string

const (
	ActionRetry      Action = "retry"
	ActionDeadLetter Action = "dead_letter"
	ActionArchive    Action = "archive"
)

// Decision is the classifier verdict. Delay is only set for retries.
type Decision struct {
	Action Action
	Reason string
	Delay  time.Duration
}

// Vocabulary is an ordered keyword list matched case-insensitively as
// substrings of the error text. The first hit wins and is reported back.
type Vocabulary []string

// Match returns the first keyword contained in message.
func (v Vocabulary) Match(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range v {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

type Config struct {
	// VocabularyVersion identifies the keyword lists in logs so any
	// quarantine decision can be reproduced later.
	VocabularyVersion string
	BaseRetryDelay    time.Duration
	MaxRetryDelay     time.Duration
	// MaxTaskAge is how old an envelope may grow before further retries
	// are pointless and it is archived instead.
	MaxTaskAge time.Duration
	Permanent  Vocabulary
	Transient  Vocabulary
}

type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 300 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 3600 * time.Second
	}
	if cfg.MaxTaskAge <= 0 {
		cfg.MaxTaskAge = 168 * time.Hour
	}
	return &Classifier{cfg: cfg}
}

// Version returns the vocabulary version for logging alongside decisions.
func (c *Classifier) Version() string {
	return c.cfg.VocabularyVersion
}

// Classify applies the rules in fixed order: retry budget, envelope age,
// permanent vocabulary, transient vocabulary, then a flat default retry.
// Budget exhaustion quarantines regardless of what the error says, and a
// message matching both vocabularies is permanent because that rule is
// checked first.
//
// The envelope is expected to carry the reported error and the already
// incremented attempt counter.
func (c *Classifier) Classify(e *envelope.TaskEnvelope, now time.Time) Decision {
	if e.Attempts >= e.MaxRetries {
		return Decision{Action: ActionDeadLetter, Reason: envelope.ReasonMaxRetriesExceeded}
	}

	if e.Age(now) > c.cfg.MaxTaskAge {
		return Decision{Action: ActionArchive, Reason: envelope.ReasonExpired}
	}

	message := ""
	if e.ErrorMessage != nil {
		message = *e.ErrorMessage
	}

	if kw, ok := c.cfg.Permanent.Match(message); ok {
		return Decision{
			Action: ActionDeadLetter,
			Reason: fmt.Sprintf("%s: matched %q", envelope.ReasonPermanentError, kw),
		}
	}

	if kw, ok := c.cfg.Transient.Match(message); ok {
		return Decision{
			Action: ActionRetry,
			Reason: fmt.Sprintf("transient error: matched %q", kw),
			Delay:  c.backoff(e.Attempts),
		}
	}

	return Decision{
		Action: ActionRetry,
		Reason: "unrecognized error",
		Delay:  c.defaultDelay(e),
	}
}

// backoff is base * 2^attempts capped at the maximum delay.
func (c *Classifier) backoff(attempts int) time.Duration {
	delay := float64(c.cfg.BaseRetryDelay) * math.Pow(2, float64(attempts))
	if delay > float64(c.cfg.MaxRetryDelay) {
		return c.cfg.MaxRetryDelay
	}
	return time.Duration(delay)
}

// defaultDelay honors the producer-chosen per-envelope delay when set.
// Unrecognized errors say nothing about downstream overload, so there is
// no exponential growth on this path.
func (c *Classifier) defaultDelay(e *envelope.TaskEnvelope) time.Duration {
	if e.RetryDelaySeconds > 0 {
		return time.Duration(e.RetryDelaySeconds) * time.Second
	}
	return c.cfg.BaseRetryDelay
}
