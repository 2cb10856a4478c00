package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	e := New(CartMigrated, "key", "cart_u1", "policy", "merge", "dangling")
	assert.Equal(t, CartMigrated, e.Kind)
	assert.Equal(t, "cart_u1", e.Attr("key"))
	assert.Equal(t, "merge", e.Attr("policy"))
	assert.Empty(t, e.Attr("dangling"), "odd trailing key is dropped")
	assert.Nil(t, New(CartLoaded).Attrs)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	var r Recorder
	r.Emit(ctx, New(DiscountApplied, "code", "A"))
	r.Emit(ctx, New(DiscountRejected, "code", "B"))
	r.Emit(ctx, New(DiscountApplied, "code", "C"))

	assert.Equal(t, 2, r.Count(DiscountApplied))
	assert.Equal(t, 0, r.Count(OrderSubmitted))

	last, ok := r.Last(DiscountApplied)
	require.True(t, ok)
	assert.Equal(t, "C", last.Attr("code"))
	_, ok = r.Last(OrderFailed)
	assert.False(t, ok)

	events := r.Events()
	require.Len(t, events, 3)
	events[0].Kind = OrderFailed
	assert.Equal(t, DiscountApplied, r.Events()[0].Kind, "Events returns a copy")
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, Nop{}, &b}
	m.Emit(context.Background(), New(CartPersisted))

	assert.Equal(t, 1, a.Count(CartPersisted))
	assert.Equal(t, 1, b.Count(CartPersisted))
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), New(CartLoaded, "lines", "2"))
	s.Emit(context.Background(), New(CartCorruptSnapshot, "reason", "items missing"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "2", entries[0].ContextMap()["lines"])
	assert.Equal(t, string(CartLoaded), entries[0].ContextMap()["event"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "items missing", entries[1].ContextMap()["reason"])
}

func TestMeterSink(t *testing.T) {
	s, err := NewMeterSink(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		s.Emit(context.Background(), New(OrderSubmitted, "order_id", "o1"))
	})
}
