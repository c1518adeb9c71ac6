package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsChannelReady_InitiallyTrue(t *testing.T) {
	s := New()
	require.True(t, s.IsChannelReady("c1", 5*time.Second))
}

func TestRecordRequest_BlocksUntilIntervalElapses(t *testing.T) {
	s := New()
	s.RecordRequest("c1", 200*time.Millisecond)
	require.False(t, s.IsChannelReady("c1", 200*time.Millisecond))

	time.Sleep(250 * time.Millisecond)
	require.True(t, s.IsChannelReady("c1", 200*time.Millisecond))
}

func TestZeroMinInterval_NeverSkipped(t *testing.T) {
	s := New()
	s.RecordRequest("c1", 0)
	require.True(t, s.IsChannelReady("c1", 0))
	s.RecordRequest("c1", 0)
	require.True(t, s.IsChannelReady("c1", 0))
}

func TestLastDispatch_RecordsTime(t *testing.T) {
	s := New()
	before := time.Now()
	s.RecordRequest("c1", time.Second)
	last := s.LastDispatch("c1")
	require.False(t, last.Before(before))
}
