package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, []byte, string) error {
	p.calls++
	return errors.New("broker down")
}

func (p *failingPublisher) Close() error { return nil }

func TestEmitSwallowsPublishErrors(t *testing.T) {
	p := &failingPublisher{}
	assert.NotPanics(t, func() {
		Emit(context.Background(), p, zap.NewNop(), LedgerEvent{Type: TypeCreditsPurchased, UserID: "u1"})
	})
	assert.Equal(t, 1, p.calls)
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, zap.NewNop(), LedgerEvent{Type: TypeCreditsPurchased})
	})
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "ledger")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "ledger")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
