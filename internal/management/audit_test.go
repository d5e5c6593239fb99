package management

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditLoggerNilDBIsNoop(t *testing.T) {
	logger := NewAuditLogger(nil)
	err := logger.LogBuild(context.Background(), AuditEntry{Trigger: TriggerStartup, Outcome: OutcomeOK})
	assert.NoError(t, err)
}

func TestAuditLoggerNilReceiverIsNoop(t *testing.T) {
	var logger *AuditLogger
	err := logger.LogBuild(context.Background(), AuditEntry{})
	assert.NoError(t, err)
}

func TestHashesToJSONNilMapEncodesEmptyObject(t *testing.T) {
	data, err := hashesToJSON(nil)
	assert.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
