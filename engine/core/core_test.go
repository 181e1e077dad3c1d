package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsDispatchUntilHandled(t *testing.T) {
	require.True(t, EventInitialize())
	defer func() { require.NoError(t, EventShutdown()) }()
	assert.False(t, EventInitialize())

	var calls []string
	first, second := "first", "second"
	handler := func(handled bool) FnOnEvent {
		return func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool {
			calls = append(calls, listener.(string))
			assert.Equal(t, uint32(640), data.Data.U32[0])
			return handled
		}
	}
	require.True(t, EventRegister(EVENT_CODE_RESIZED, first, handler(true)))
	require.True(t, EventRegister(EVENT_CODE_RESIZED, second, handler(false)))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, first, handler(false)))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, "nil", nil))

	ctx := EventContext{}
	ctx.Data.U32[0] = 640
	assert.True(t, EventFire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first"}, calls)

	require.True(t, EventUnregister(EVENT_CODE_RESIZED, first))
	assert.False(t, EventUnregister(EVENT_CODE_RESIZED, first))
	assert.False(t, EventFire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.False(t, EventFire(EVENT_CODE_APPLICATION_QUIT, nil, ctx))
}

func TestEventsBeforeInitialize(t *testing.T) {
	assert.False(t, EventRegister(EVENT_CODE_APPLICATION_QUIT, t, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return true }))
	assert.False(t, EventFire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.False(t, EventUnregister(EVENT_CODE_APPLICATION_QUIT, t))
}

func TestClock(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewClock()
	c.now = func() time.Time { return now }

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())
}

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(10 * time.Millisecond)
	}
	fps, ms, total := m.Frame()
	assert.Zero(t, fps)
	assert.InDelta(t, 10, ms, 1e-9)
	assert.EqualValues(t, AVG_COUNT, total)

	// 30 frames of 10ms plus these cross the one second mark
	for i := 0; i < 71; i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.InDelta(t, 100, m.FPS(), 1)
	assert.InDelta(t, 10, m.FrameTime(), 1e-9)
}

func TestParseLogLevel(t *testing.T) {
	for _, l := range []LogLevel{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel} {
		got, err := ParseLogLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	got, err := ParseLogLevel(" WARNING ")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, got)
	got, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, got)

	_, err = ParseLogLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
