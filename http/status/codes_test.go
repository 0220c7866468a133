package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	require.Equal(t, "OK", Text(OK))
	require.Equal(t, "Not Found", Text(NotFound))
	require.Equal(t, "I'm a teapot", Text(Teapot))
	require.Empty(t, Text(Code(999)))
}

func TestError(t *testing.T) {
	err := NewError(BadRequest, "bad request")
	require.EqualError(t, err, "bad request")
	require.Equal(t, BadRequest, err.(HTTPError).Code)
}
