package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Positive(t, cfg.Headers.MaxNumber)
	require.Positive(t, cfg.Headers.MaxLineSize)
	require.Positive(t, cfg.Body.MaxSize)
	require.Equal(t, 12, cfg.Body.MaxContentLengthDigits)
	require.Positive(t, cfg.NET.ReadBufferSize)
	require.Positive(t, cfg.NET.Timeout)
}
