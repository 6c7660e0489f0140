package outbox

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/habitledger/pkg/events"
)

func TestRecordPublishedCountsPerEventType(t *testing.T) {
	toggled := publishedEvents.WithLabelValues(events.HabitCompletionToggledType, resultDeadLettered)
	created := publishedEvents.WithLabelValues(events.HabitCreatedType, resultDeadLettered)
	beforeToggled, beforeCreated := testutil.ToFloat64(toggled), testutil.ToFloat64(created)

	recordPublished([]Message{
		{EventType: events.HabitCompletionToggledType},
		{EventType: events.HabitCompletionToggledType},
		{EventType: events.HabitCreatedType},
	}, resultDeadLettered)

	require.Equal(t, beforeToggled+2, testutil.ToFloat64(toggled))
	require.Equal(t, beforeCreated+1, testutil.ToFloat64(created))
}

func TestRecordDLQOutcome(t *testing.T) {
	counter := dlqOutcomes.WithLabelValues(events.HabitDeletedType, outcomeQuarantined)
	before := testutil.ToFloat64(counter)

	recordDLQOutcome(dlqEntry{EventType: events.HabitDeletedType}, outcomeQuarantined)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}
