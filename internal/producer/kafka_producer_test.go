package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestBuildMessages(t *testing.T) {
	pid := uuid.New()
	aid := uuid.New()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	msgs, err := BuildMessages(LedgerEvent{
		Type:         EventAssignmentCreated,
		ProductID:    pid,
		OccurredAt:   at,
		AssignmentID: &aid,
		Kind:         "BULK",
		Quantity:     4,
		StartDate:    "2024-06-01",
		EndDate:      "2024-06-03",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, pid.String(), string(m.Key))
	assert.Equal(t, "event_type", m.Headers[0].Key)
	assert.Equal(t, "assignment.created", string(m.Headers[0].Value))
	assert.True(t, m.Time.Equal(at))

	var body map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &body))
	assert.Equal(t, "assignment.created", body["type"])
	assert.Equal(t, aid.String(), body["assignment_id"])
	assert.Equal(t, float64(4), body["quantity"])
	assert.NotContains(t, body, "item_id")
}

func TestLedgerProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &LedgerProducer{writer: w, timeout: time.Second}

	require.NoError(t, p.Publish(context.Background()))
	assert.Empty(t, w.msgs)

	pid := uuid.New()
	err := p.Publish(context.Background(),
		LedgerEvent{Type: EventStockAdjusted, ProductID: pid, Delta: 5},
		LedgerEvent{Type: EventStockAdjusted, ProductID: pid, Delta: -2},
	)
	require.NoError(t, err)
	assert.Len(t, w.msgs, 2)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), LedgerEvent{Type: EventStockAdjusted, ProductID: pid}))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
