package model

import (
	"encoding/json"
	"time"
)

type OutboxEvent struct {
	ID              int64           `db:"id"`
	ExecutionID     string          `db:"execution_id"`
	Owner           string          `db:"owner"`
	EventType       string          `db:"event_type"`
	ExecutionStatus ExecutionStatus `db:"execution_status"`
	EventBlob       json.RawMessage `db:"event_blob"`
	PublishStatus   string          `db:"publish_status"`
	CreatedAt       time.Time       `db:"created_at"`
}
