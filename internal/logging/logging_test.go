package logging

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"no secrets here", "no secrets here"},
		{"Authorization: Bearer abc.def-123", "Authorization: Bearer [REDACTED]"},
		{"x-api-key: 0123456789abcdef", "x-api-key: [REDACTED]"},
		{"api_key=0123456789abcdef&q=1", "api_key=[REDACTED]&q=1"},
		{"invalid key sk-ant-api03-abcdefghij", "invalid key [REDACTED]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), tt.in)
	}
}

func TestRedactedError(t *testing.T) {
	f := RedactedError(stderrors.New("401: Bearer sk-abcdefghijklmnop rejected"))
	assert.Equal(t, "error", f.Key)
	assert.NotContains(t, f.String, "sk-abcdefghijklmnop")

	assert.Equal(t, zap.Skip(), RedactedError(nil))
}

func TestBuild(t *testing.T) {
	logger, err := Build(Config{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = Build(Config{Level: "nonsense", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel), "unknown levels fall back to info")

	_, err = Build(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "log.txt")})
	assert.Error(t, err)
}
