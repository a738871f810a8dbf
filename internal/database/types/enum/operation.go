package enum

// Operation identifies what kind of activity an event record describes.
// Values are stored as-is in the events table, so they must stay stable.
type Operation string

const (
	// OperationWantsToJoin records a user's pending join request.
	OperationWantsToJoin Operation = "wants_to_join"
	// OperationHasVerified records that a user completed verification.
	OperationHasVerified Operation = "has_verified"
	// OperationReplyingToBot records a direct reply to the bot.
	OperationReplyingToBot Operation = "replying_to_bot"
	// OperationDeletion records a removal performed by an upstream handler.
	OperationDeletion Operation = "deletion"
	// OperationBackgroundTask tags reconciliation run audit entries.
	OperationBackgroundTask Operation = "background_task"
	// OperationIsBanned marks a member as banned by the engine.
	OperationIsBanned Operation = "is_banned"
)

// String returns the stored representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// Valid reports whether the operation is one of the known values.
func (o Operation) Valid() bool {
	switch o {
	case OperationWantsToJoin, OperationHasVerified, OperationReplyingToBot,
		OperationDeletion, OperationBackgroundTask, OperationIsBanned:
		return true
	default:
		return false
	}
}
