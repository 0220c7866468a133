package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pairs(s *Storage) (out []Pair) {
	for key, value := range s.Iter() {
		out = append(out, Pair{key, value})
	}

	return out
}

func TestStorage(t *testing.T) {
	t.Run("case-insensitive lookup", func(t *testing.T) {
		s := New().Add("Content-Length", "13")
		require.Equal(t, "13", s.Value("content-length"))
		require.True(t, s.Has("CONTENT-LENGTH"))
		require.False(t, s.Has("content-type"))
	})

	t.Run("multiple values", func(t *testing.T) {
		s := New().
			Add("Accept", "text/html").
			Add("accept", "application/json")
		require.Equal(t, []string{"text/html", "application/json"}, s.Values("Accept"))
		require.Equal(t, "text/html", s.Value("Accept"))
	})

	t.Run("insertion order preserved", func(t *testing.T) {
		s := New().Add("b", "1").Add("a", "2").Add("b", "3")
		require.Equal(t, []Pair{{"b", "1"}, {"a", "2"}, {"b", "3"}}, pairs(s))
	})

	t.Run("pseudo-fields precede ordinary ones", func(t *testing.T) {
		s := New().
			Add("host", "example.com").
			Add(":method", "GET").
			Add("user-agent", "test").
			Add(":path", "/")
		require.Equal(t, []Pair{
			{":method", "GET"},
			{":path", "/"},
			{"host", "example.com"},
			{"user-agent", "test"},
		}, pairs(s))
	})

	t.Run("clone is independent", func(t *testing.T) {
		s := New().Add(":status", "200")
		c := s.Clone()
		s.Add("x", "y")
		require.Equal(t, 1, c.Len())
		require.Equal(t, "200", c.Value(":status"))
	})

	t.Run("clear resets pseudo prefix", func(t *testing.T) {
		s := New().Add(":method", "GET").Add("host", "h")
		s.Clear()
		require.True(t, s.Empty())
		s.Add("ordinary", "1").Add(":status", "200")
		require.Equal(t, []Pair{{":status", "200"}, {"ordinary", "1"}}, pairs(s))
	})
}
