package llmclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CallRecord is one logged provider call, successful or not.
type CallRecord struct {
	RequestID     string
	Tier          Tier
	Provider      string
	Model         string
	Messages      []Message
	Response      string
	PromptTokens  int
	CompletionTok int
	TotalTokens   int
	FinishReason  string
	StartedAt     time.Time
	CompletedAt   time.Time
	DurationMs    int64
	Retries       int
	FallbacksUsed []string
	Error         string
}

// PersistFunc optionally persists a CallRecord beyond the in-process list
// (e.g. to the state store's audit table). A nil PersistFunc disables
// persistence without disabling in-memory recording.
type PersistFunc func(ctx context.Context, record *CallRecord) error

// AuditLogger is an append-only in-memory list of provider calls, mirroring
// the audit logger's summary-by-scan shape: persistence failures are logged
// and swallowed rather than surfaced to the caller, since a broken audit
// sink must never fail the underlying LLM call it is recording.
type AuditLogger struct {
	mu      sync.Mutex
	records []*CallRecord
	persist PersistFunc
	logger  *slog.Logger
}

// NewAuditLogger creates a logger. persist may be nil.
func NewAuditLogger(persist PersistFunc, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{persist: persist, logger: logger}
}

// Record appends a call record and, if a PersistFunc is configured, attempts
// to persist it. A persistence error is logged and otherwise ignored.
func (a *AuditLogger) Record(ctx context.Context, record *CallRecord) {
	a.mu.Lock()
	a.records = append(a.records, record)
	a.mu.Unlock()

	if a.persist == nil {
		return
	}
	if err := a.persist(ctx, record); err != nil {
		a.logger.Warn("audit persistence failed",
			"request_id", record.RequestID,
			"tier", record.Tier,
			"error", err)
	}
}

// Summary aggregates the in-memory records: call count, failure count, and
// total tokens consumed, the figures the admin surface reports.
type Summary struct {
	Calls        int
	Failures     int
	TotalTokens  int
	TotalRetries int
}

// Summarize scans the in-memory record list. It does not consult the
// persistence backend — only calls made by this process since startup.
func (a *AuditLogger) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Summary
	for _, r := range a.records {
		s.Calls++
		if r.Error != "" {
			s.Failures++
		}
		s.TotalTokens += r.TotalTokens
		s.TotalRetries += r.Retries
	}
	return s
}

// Records returns a snapshot copy of the in-memory call list.
func (a *AuditLogger) Records() []*CallRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*CallRecord, len(a.records))
	copy(out, a.records)
	return out
}
