package management

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfRepositoryNilClientListReturnsEmpty(t *testing.T) {
	repo := NewConfRepository(nil, "enrich", "enrichment_declarations")
	entries, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestConfRepositoryNilReceiverListReturnsEmpty(t *testing.T) {
	var repo *ConfRepository
	entries, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, entries)
}
