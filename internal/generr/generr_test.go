package generr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	wrapped := fmt.Errorf("assemble: %w", Wrap(IOFailure, cause, "write %s", "a.java").At("a.java"))

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "direct", err: New(NameCollision, "collide"), want: NameCollision},
		{name: "wrapped", err: wrapped, want: IOFailure},
		{name: "canceled", err: fmt.Errorf("run: %w", context.Canceled), want: Canceled},
		{name: "unknown", err: errors.New("boom"), want: Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	err := Wrap(IOFailure, cause, "promote %s", "build.gradle").At("build.gradle")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "promote build.gradle: permission denied", err.Error())
	assert.Equal(t, "build.gradle", err.Location)
	assert.True(t, Is(err, IOFailure))
}
