// audit.go: Audit trail of persisted configuration changes
//
// Every write the Manager performs on its storage (save, clear, single-value
// clear) can be recorded with the values before and after the change. Events
// are buffered and flushed in batches to a JSONL file or an SQLite table;
// each event carries a SHA-256 checksum for tamper detection.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Audit event names
const (
	AuditEventValuesSaved   = "values_saved"
	AuditEventValuesCleared = "values_cleared"
	AuditEventValueCleared  = "value_cleared"
)

// AuditEvent represents a single recorded change.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     AuditLevel             `json:"level"`
	Event     string                 `json:"event"`
	Manager   string                 `json:"manager"`
	ItemID    string                 `json:"item_id,omitempty"`
	OldValue  interface{}            `json:"old_value,omitempty"`
	NewValue  interface{}            `json:"new_value,omitempty"`
	ProcessID int                    `json:"process_id"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Checksum  string                 `json:"checksum"`
}

// AuditConfig configures the audit logger.
//
// OutputFile selects the backend by extension: ".jsonl" appends JSON lines,
// ".db" and ".sqlite" write to an SQLite table.
type AuditConfig struct {
	OutputFile    string
	MinLevel      AuditLevel
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultAuditConfig returns the default configuration for outputFile.
func DefaultAuditConfig(outputFile string) AuditConfig {
	return AuditConfig{
		OutputFile:    outputFile,
		MinLevel:      AuditInfo,
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger buffers audit events and writes them to a backend.
// Safe for concurrent use; a nil *AuditLogger discards events.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
}

// NewAuditLogger opens the backend and starts the background flusher when
// FlushInterval is positive.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, err
	}

	logger := &AuditLogger{
		config:    config,
		backend:   backend,
		buffer:    make([]AuditEvent, 0, config.BufferSize),
		stopCh:    make(chan struct{}),
		processID: os.Getpid(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}
	return logger, nil
}

// Log records an event. Events below MinLevel are dropped.
func (al *AuditLogger) Log(level AuditLevel, event, manager, itemID string, oldVal, newVal interface{}, context map[string]interface{}) {
	if al == nil || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp: timecache.CachedTime(),
		Level:     level,
		Event:     event,
		Manager:   manager,
		ItemID:    itemID,
		OldValue:  oldVal,
		NewValue:  newVal,
		ProcessID: al.processID,
		Context:   context,
	}
	auditEvent.Checksum = auditChecksum(auditEvent)

	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // retried on the next flush
	}
}

// LogValuesSaved records a full save.
func (al *AuditLogger) LogValuesSaved(manager string, oldValues, newValues map[string]interface{}) {
	al.Log(AuditCritical, AuditEventValuesSaved, manager, "", oldValues, newValues, nil)
}

// LogValuesCleared records a full clear.
func (al *AuditLogger) LogValuesCleared(manager string, oldValues map[string]interface{}) {
	al.Log(AuditCritical, AuditEventValuesCleared, manager, "", oldValues, nil, nil)
}

// LogValueCleared records the removal of one stored value.
func (al *AuditLogger) LogValueCleared(manager, itemID string, oldValue interface{}) {
	al.Log(AuditWarn, AuditEventValueCleared, manager, itemID, oldValue, nil, nil)
}

// Flush writes buffered events to the backend.
func (al *AuditLogger) Flush() error {
	if al == nil {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	if err := al.flushBufferUnsafe(); err != nil {
		return err
	}
	return al.backend.Flush()
}

// Close stops the flusher, writes pending events and closes the backend.
// Calling Close more than once is a no-op.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}

	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}

		if flushErr := al.Flush(); flushErr != nil {
			err = errors.Wrap(flushErr, ErrCodeStorage, "failed to flush audit logger during close")
		}
		if closeErr := al.backend.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, ErrCodeStorage, "failed to close audit backend")
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // retried on the next tick
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer; the caller holds bufferMu.
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeStorage, "failed to write audit events")
	}
	al.buffer = al.buffer[:0]
	return nil
}

// VerifyAuditChecksum reports whether event still matches its checksum.
func VerifyAuditChecksum(event AuditEvent) bool {
	return event.Checksum != "" && event.Checksum == auditChecksum(event)
}

func auditChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Manager, event.ItemID, event.OldValue, event.NewValue)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}
