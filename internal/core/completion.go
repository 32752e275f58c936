package core

import "time"

// CompletionState tracks a pending order through completion.
type CompletionState string

const (
	StatePending    CompletionState = "pending"
	StateCompleting CompletionState = "completing"
	StateCompleted  CompletionState = "completed"
	StateFailed     CompletionState = "failed"
)

// CompletionResult describes a committed completion.
type CompletionResult struct {
	Order    PendingOrder
	Bucket   DateBucket
	LineItem LineItem
	// BucketCreated is true when this completion opened the bucket.
	BucketCreated bool
	// CompletedAt is when this completion committed, in UTC.
	CompletedAt time.Time
}
