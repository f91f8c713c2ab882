package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostingError_Error(t *testing.T) {
	err := NewPostingError(CodeUnmappedExternalType, 7, "external type %d (%s) has no active mapping", 42, "in")
	assert.Equal(t, "UnmappedExternalType: external type 42 (in) has no active mapping", err.Error())
	assert.Equal(t, "ZeroAmount", (&PostingError{Code: CodeZeroAmount}).Error())
}

func TestPostingError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("posting 3: %w", NewPostingError(CodeAmbiguousMapping, 3, "two types"))

	assert.True(t, errors.Is(err, ErrAmbiguousMapping))
	assert.False(t, errors.Is(err, ErrUnmappedExternalType))
	assert.Equal(t, CodeAmbiguousMapping, CodeOf(err))
}

func TestCodeOf_Unclassified(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("disk full")))
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "stale balance", err: WrapPostingError(CodePostingConflict, 1, ErrStaleBalance), want: true},
		{name: "claim lost", err: fmt.Errorf("mark processed: %w", ErrClaimLost), want: true},
		{name: "bare conflict code", err: NewPostingError(CodePostingConflict, 1, "raced"), want: true},
		{name: "classified failure", err: NewPostingError(CodeZeroAmount, 1, "zero"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflict(tt.err))
		})
	}
}

func TestUserError(t *testing.T) {
	inner := errors.New("strconv: bad digit")
	err := NewUserError("invalid staging id list", inner)

	assert.Equal(t, "invalid staging id list: strconv: bad digit", err.Error())
	assert.ErrorIs(t, err, inner)
}
