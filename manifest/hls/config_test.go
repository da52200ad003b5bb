package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 0.0, config.DefaultTimeOffset)
	assert.Equal(t, 3*time.Second, config.UpdateFloor)
	assert.True(t, config.UnsupportedContainerFatal)
	assert.Equal(t, int64(4096), config.StartTimeProbeBytes)

	assert.NoError(t, config.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Run("zero update floor", func(t *testing.T) {
		config := DefaultConfig()
		config.UpdateFloor = 0
		assert.Error(t, config.Validate())
	})

	t.Run("negative probe size", func(t *testing.T) {
		config := DefaultConfig()
		config.StartTimeProbeBytes = -1
		assert.Error(t, config.Validate())
	})
}
