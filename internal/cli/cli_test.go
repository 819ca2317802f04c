package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse([]string{"pipeline.hcl"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.NotNil(t, config)
	assert.Equal(t, "pipeline.hcl", config.PipelinePath)
	assert.Equal(t, "text", config.LogFormat)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 30*time.Second, config.Timeout)
}

func TestParse_Flags(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse([]string{
		"-pipeline", "grid.hcl",
		"-log-format", "json",
		"-log-level", "DEBUG",
		"-timeout", "90s",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "grid.hcl", config.PipelinePath)
	assert.Equal(t, "json", config.LogFormat)
	assert.Equal(t, "debug", config.LogLevel, "levels are case-insensitive")
	assert.Equal(t, 90*time.Second, config.Timeout)
}

func TestParse_ShorthandFlag(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, _, err := Parse([]string{"-p", "short.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "short.hcl", config.PipelinePath)
}

func TestParse_LongFlagWinsOverPositional(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, _, err := Parse([]string{"-pipeline", "flagged.hcl", "positional.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "flagged.hcl", config.PipelinePath)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_HelpFlag(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown flag", func(t *testing.T) {
		out := &bytes.Buffer{}
		_, _, err := Parse([]string{"-bogus"}, out)
		require.Error(t, err)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("invalid log format", func(t *testing.T) {
		out := &bytes.Buffer{}
		_, _, err := Parse([]string{"-log-format", "xml", "pipeline.hcl"}, out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		out := &bytes.Buffer{}
		_, _, err := Parse([]string{"-log-level", "loud", "pipeline.hcl"}, out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log-level")
	})
}
