package pmerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureRendering(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "coded with message",
			err:  New(VerificationRejected, "Install not allowed"),
			want: "Failure [INSTALL_FAILED_VERIFICATION_FAILURE: Install not allowed]",
		},
		{
			name: "coded without message",
			err:  New(UsedSharedLibrary, ""),
			want: "Failure [DELETE_FAILED_USED_SHARED_LIBRARY]",
		},
		{
			name: "uncoded",
			err:  New(NoInstaller, "No installer found to archive app %s.", "com.x"),
			want: "Failure [No installer found to archive app com.x.]",
		},
		{
			name: "unclassified",
			err:  errors.New("disk full"),
			want: "Failure [INSTALL_FAILED_INTERNAL_ERROR: disk full]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Failure(tt.err))
		})
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("commit 3: %w", New(MissingSharedLibrary, "com.sdk"))

	assert.True(t, errors.Is(err, ErrMissingSharedLibrary))
	assert.False(t, errors.Is(err, ErrSignatureMismatch))
	assert.Equal(t, MissingSharedLibrary, KindOf(err))
	assert.Equal(t, Internal, KindOf(errors.New("x")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := Wrap(NotApk, cause, "base.apk")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "INSTALL_PARSE_FAILED_NOT_APK: base.apk: zip: not a valid zip file", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NoMainActivity", NoMainActivity.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
