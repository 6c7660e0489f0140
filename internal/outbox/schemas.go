package outbox

import (
	"slices"

	"example.com/habitledger/pkg/events"
)

const habitCreatedSchema = `{
  "type": "object",
  "title": "HabitCreated",
  "properties": {
    "habit_id": {"type": "string"},
    "title": {"type": "string"},
    "week_days": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "title", "week_days", "created_at"],
  "additionalProperties": false
}`

const habitCompletionToggledSchema = `{
  "type": "object",
  "title": "HabitCompletionToggled",
  "properties": {
    "habit_id": {"type": "string"},
    "day_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "completed": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "day_id", "date", "completed", "occurred_at"],
  "additionalProperties": false
}`

const habitDeletedSchema = `{
  "type": "object",
  "title": "HabitDeleted",
  "properties": {
    "habit_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "occurred_at"],
  "additionalProperties": false
}`

// Route describes where an event type is published and which schema frames it.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]Route{
	events.HabitCreatedType: {
		Topic:         "habit_created",
		SchemaSubject: "habit_created-value",
		Schema:        habitCreatedSchema,
	},
	events.HabitCompletionToggledType: {
		Topic:         "habit_completion_toggled",
		SchemaSubject: "habit_completion_toggled-value",
		Schema:        habitCompletionToggledSchema,
	},
	events.HabitDeletedType: {
		Topic:         "habit_deleted",
		SchemaSubject: "habit_deleted-value",
		Schema:        habitDeletedSchema,
	},
}

// RouteFor returns the routing metadata for eventType.
func RouteFor(eventType string) (Route, bool) {
	route, ok := catalog[eventType]
	return route, ok
}

// Topics lists every topic the outbox publishes to, sorted.
func Topics() []string {
	topics := make([]string, 0, len(catalog))
	for _, route := range catalog {
		topics = append(topics, route.Topic)
	}
	slices.Sort(topics)
	return topics
}
