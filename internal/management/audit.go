package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trigger identifies why a registry build ran.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerRefresh Trigger = "refresh"
)

// Outcome records whether the build that followed a Trigger actually
// produced a usable Registry.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeBuildFailed Outcome = "build_failed"
)

// AuditEntry is one row of the registry build history: what asset
// content the build started and ended with, and whether it succeeded.
type AuditEntry struct {
	ID           string
	Trigger      Trigger
	Outcome      Outcome
	HashesBefore map[string]string
	HashesAfter  map[string]string
	Error        string
	Timestamp    time.Time
}

// AuditLogger persists AssetManager build history so an operator can
// see, after the fact, exactly which asset content a running registry
// was built from and whether any refresh attempt was rolled back.
type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

func (a *AuditLogger) LogBuild(ctx context.Context, entry AuditEntry) error {
	if a == nil || a.db == nil {
		return nil
	}

	query := `
		INSERT INTO registry_audit (id, trigger, outcome, hashes_before, hashes_after, build_error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var buildErr *string
	if entry.Error != "" {
		buildErr = &entry.Error
	}

	hashesBefore, err := hashesToJSON(entry.HashesBefore)
	if err != nil {
		return fmt.Errorf("marshal hashes before: %w", err)
	}
	hashesAfter, err := hashesToJSON(entry.HashesAfter)
	if err != nil {
		return fmt.Errorf("marshal hashes after: %w", err)
	}

	_, err = a.db.ExecContext(ctx, query,
		id, string(entry.Trigger), string(entry.Outcome),
		hashesBefore, hashesAfter, buildErr, timestamp,
	)
	if err != nil {
		return fmt.Errorf("log registry audit entry: %w", err)
	}

	return nil
}

func hashesToJSON(hashes map[string]string) ([]byte, error) {
	if hashes == nil {
		hashes = map[string]string{}
	}
	return json.Marshal(hashes)
}
