package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stockledger-api/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaAuditPublisher_Publish(t *testing.T) {
	w := &captureWriter{}
	p := newKafkaAuditPublisher(w, "inventory.audit")

	price := decimal.RequireFromString("2.50")
	total := decimal.RequireFromString("25.00")
	entry := model.AuditEntry{
		ID:                "a1",
		ProductID:         42,
		Kind:              model.AuditIncrease,
		Quantity:          10,
		PreviousQuantity:  0,
		ResultingQuantity: 10,
		UnitPrice:         &price,
		TotalPrice:        &total,
		OccurredAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), entry))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	var ev AuditEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "inventory.audit.INCREASE", ev.Type)
	assert.Equal(t, int64(42), ev.Entry.ProductID)
	require.NotNil(t, ev.Entry.TotalPrice)
	assert.True(t, total.Equal(*ev.Entry.TotalPrice))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaAuditPublisher_WriteError(t *testing.T) {
	p := newKafkaAuditPublisher(&captureWriter{err: errors.New("broker down")}, "inventory.audit")

	err := p.Publish(context.Background(), model.AuditEntry{ProductID: 1, Kind: model.AuditSet})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, "kafka", p.Name())
}
