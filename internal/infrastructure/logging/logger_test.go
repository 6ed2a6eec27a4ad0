package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		enabled zapcore.Level
	}{
		{name: "production", cfg: DefaultConfig(), enabled: zapcore.InfoLevel},
		{name: "development", cfg: DevelopmentConfig(), enabled: zapcore.DebugLevel},
		{name: "warn only", cfg: Config{Level: "warn"}, enabled: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestFromSettingsFallsBack(t *testing.T) {
	logger := FromSettings("loud", false)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger = FromSettings("error", true, "stderr")
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
