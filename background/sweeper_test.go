package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls   atomic.Int32
	removed int64
	err     error
	lastNow atomic.Value
}

func (c *countingStore) ClearExpiredCodes(_ context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	c.lastNow.Store(now)
	return c.removed, c.err
}

func (c *countingStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return c.ClearExpiredCodes(context.Background(), now)
}

func TestSweepLogsOutcome(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	codes := &countingStore{removed: 3}
	tokens := &countingStore{err: errors.New("connection refused")}
	s := NewSweeper(codes, tokens, logger)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.sweepCodes()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, int64(3), hook.LastEntry().Data["removed"])
	assert.Equal(t, fixed, codes.lastNow.Load())

	s.sweepTokens()
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "reset tokens", hook.LastEntry().Data["target"])

	codes.removed = 0
	s.sweepCodes()
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestSweeperSchedulesBothJobs(t *testing.T) {
	codes := &countingStore{}
	tokens := &countingStore{}
	s := NewSweeper(codes, tokens, logrus.New())
	s.codeSchedule = "@every 10ms"
	s.tokenSchedule = "@every 10ms"

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool {
		return codes.calls.Load() > 0 && tokens.calls.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&countingStore{}, &countingStore{}, logrus.New())
	s.codeSchedule = "not a schedule"
	assert.Error(t, s.Start())
}
