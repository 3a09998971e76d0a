package domain

import "time"

// Stream names as they appear in configuration, storage and messages.
const (
	StreamCatalogs              = "catalogs"
	StreamScheduledOfferings    = "scheduled_offerings"
	StreamLearningHistory       = "learning_history"
	StreamUserTodoLearningItems = "user_todo_learning_items"
)

// Record is the outward shape handed to storage and the message sink.
type Record struct {
	Stream      string         `json:"stream"`
	Key         string         `json:"key"`
	Data        map[string]any `json:"data"`
	ExtractedAt time.Time      `json:"extracted_at"`
}
