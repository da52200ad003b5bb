package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimelineClassString(t *testing.T) {
	assert.Equal(t, "live", ClassLive.String())
	assert.Equal(t, "event", ClassEventInProgress.String())
	assert.Equal(t, "vod", ClassVOD.String())
}

func TestTimelineClassification(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassLive)
		assert.True(t, timeline.IsLive())
		assert.False(t, timeline.IsInProgress())
	})

	t.Run("event in progress", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassEventInProgress)
		assert.False(t, timeline.IsLive())
		assert.True(t, timeline.IsInProgress())
	})

	t.Run("vod", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassVOD)
		assert.False(t, timeline.IsLive())
		assert.False(t, timeline.IsInProgress())
	})
}

func TestMarkVODIsOneDirectional(t *testing.T) {
	timeline := NewPresentationTimeline(ClassLive)
	timeline.MarkVOD()

	assert.Equal(t, ClassVOD, timeline.Classification())
	assert.False(t, timeline.IsLive())

	// Marking again keeps the terminal state.
	timeline.MarkVOD()
	assert.Equal(t, ClassVOD, timeline.Classification())
}

func TestExtendWindow(t *testing.T) {
	t.Run("live window slides", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassLive)

		timeline.ExtendWindow(0, 4)
		start, end := timeline.AvailabilityWindow()
		assert.Equal(t, 0.0, start)
		assert.Equal(t, 4.0, end)

		timeline.ExtendWindow(2, 6)
		start, end = timeline.AvailabilityWindow()
		assert.Equal(t, 2.0, start)
		assert.Equal(t, 6.0, end)
	})

	t.Run("end never regresses", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassLive)

		timeline.ExtendWindow(0, 6)
		timeline.ExtendWindow(0, 4)

		_, end := timeline.AvailabilityWindow()
		assert.Equal(t, 6.0, end)
	})

	t.Run("event window start stays at zero", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassEventInProgress)

		timeline.ExtendWindow(12, 18)
		start, end := timeline.AvailabilityWindow()
		assert.Equal(t, 0.0, start)
		assert.Equal(t, 18.0, end)
	})

	t.Run("vod window start stays at zero", func(t *testing.T) {
		timeline := NewPresentationTimeline(ClassVOD)

		timeline.ExtendWindow(12, 18)
		start, _ := timeline.AvailabilityWindow()
		assert.Equal(t, 0.0, start)
	})
}

func TestTimelineDuration(t *testing.T) {
	timeline := NewPresentationTimeline(ClassLive)
	assert.Equal(t, 0.0, timeline.Duration())

	timeline.ExtendWindow(0, 27.027)
	assert.Equal(t, 27.027, timeline.Duration())
}
