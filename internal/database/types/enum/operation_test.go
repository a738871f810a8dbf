package enum_test

import (
	"testing"

	"github.com/joinwarden/joinwarden/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
)

func TestOperationString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wants_to_join", enum.OperationWantsToJoin.String())
	assert.Equal(t, "background_task", enum.OperationBackgroundTask.String())
}

func TestOperationValid(t *testing.T) {
	t.Parallel()

	valid := []enum.Operation{
		enum.OperationWantsToJoin,
		enum.OperationHasVerified,
		enum.OperationReplyingToBot,
		enum.OperationDeletion,
		enum.OperationBackgroundTask,
		enum.OperationIsBanned,
	}

	for _, op := range valid {
		assert.True(t, op.Valid(), "operation %s", op)
	}

	assert.False(t, enum.Operation("").Valid())
	assert.False(t, enum.Operation("unknown").Valid())
}
