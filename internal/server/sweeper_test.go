package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/txtest"
)

func TestSweepClosesDriftedGroups(t *testing.T) {
	registry, mock, funding, m := newTestRegistry(t, 3)
	sweeper := NewSweeper(registry, mock, time.Hour, zap.NewNop(), m)

	require.NoError(t, registry.Admit(context.Background(), txtest.Hex(spendAt(funding, 0, 20.5, 0xb0))))
	mock.SetFeeRate(10.0)

	sweeper.Sweep(context.Background())

	assert.Empty(t, registry.Snapshot())
	assert.Len(t, mock.Broadcasts, 1)
}

func TestSweepSkipsDriftPassWithoutEstimate(t *testing.T) {
	registry, mock, funding, m := newTestRegistry(t, 3)
	sweeper := NewSweeper(registry, mock, time.Hour, zap.NewNop(), m)

	require.NoError(t, registry.Admit(context.Background(), txtest.Hex(spendAt(funding, 0, 20.5, 0xb0))))
	mock.SetError("estimate_fee", errors.New("endpoint down"))

	sweeper.Sweep(context.Background())

	// The group is young and the drift pass was skipped, so it stays.
	assert.Len(t, registry.Snapshot(), 1)
	assert.Empty(t, mock.Broadcasts)
}

func TestSweeperRunStopsOnContextCancel(t *testing.T) {
	registry, mock, funding, m := newTestRegistry(t, 3)
	sweeper := NewSweeper(registry, mock, 5*time.Millisecond, zap.NewNop(), m)

	require.NoError(t, registry.Admit(context.Background(), txtest.Hex(spendAt(funding, 0, 20.5, 0xb0))))
	mock.SetFeeRate(10.0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	// The first tick should close the drifted group.
	deadline := time.After(2 * time.Second)
	for len(registry.Snapshot()) != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never closed the drifted group")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
