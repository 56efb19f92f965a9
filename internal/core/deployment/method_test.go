package deployment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod_Recognized(t *testing.T) {
	tests := []struct {
		selector string
		want     Method
	}{
		{"remote-invocation", MethodRemote},
		{"local-invocation", MethodLocal},
		{"ansible", MethodRemote},
		{"docker", MethodLocal},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, err := ParseMethod(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMethod_Unknown(t *testing.T) {
	for _, selector := range []string{"", "ssh", "Remote-Invocation", " docker", "local"} {
		t.Run(selector, func(t *testing.T) {
			_, err := ParseMethod(selector)
			require.Error(t, err)

			var methodErr *UnknownMethodError
			require.True(t, errors.As(err, &methodErr))
			assert.Equal(t, selector, methodErr.Method)
		})
	}
}

func TestUnknownMethodError_ListsChoices(t *testing.T) {
	err := &UnknownMethodError{Method: "ssh"}
	assert.Contains(t, err.Error(), "remote-invocation")
	assert.Contains(t, err.Error(), "local-invocation")
}
