package strutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCmpFold(t *testing.T) {
	require.True(t, CmpFold("HELLO", "hello"))
	require.True(t, CmpFold("Transfer-Encoding", "transfer-encoding"))
	require.False(t, CmpFold("close", "closed"))
	require.False(t, CmpFold("\v\t", "\r\t"))
}

func TestWalkTokens(t *testing.T) {
	collect := func(value string) (tokens []string) {
		for token := range WalkTokens(value) {
			tokens = append(tokens, token)
		}

		return tokens
	}

	require.Equal(t, []string{"gzip", "chunked"}, collect("gzip, chunked"))
	require.Equal(t, []string{"close"}, collect("  close  "))
	require.Equal(t, []string{"a", "b"}, collect("a,,b,"))
	require.Nil(t, collect(""))
}

func TestHasToken(t *testing.T) {
	require.True(t, HasToken("keep-alive, Upgrade", "upgrade"))
	require.True(t, HasToken("Keep-Alive", "keep-alive"))
	require.False(t, HasToken("keepalive", "keep-alive"))
}

func TestLastToken(t *testing.T) {
	require.Equal(t, "chunked", LastToken("gzip, chunked"))
	require.Equal(t, "chunked", LastToken("chunked"))
	require.Equal(t, "", LastToken(""))
}
