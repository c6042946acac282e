package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/shared"
)

func TestNewRetryFailedImportsTask(t *testing.T) {
	task, err := NewRetryFailedImportsTask(25)
	require.NoError(t, err)
	assert.Equal(t, shared.TypeRetryFailedImports, task.Type())

	var payload model.RetryFailedImportsPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 25, payload.Limit)
}
