package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	s, err := NewStateSigner(testConfig().Session.Secret)
	require.NoError(t, err)

	state, err := s.Issue("/calendar/abc", "nonce-1")
	require.NoError(t, err)

	redirect, err := s.Verify(state, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, "/calendar/abc", redirect)
}

func TestStateRequiresMatchingNonce(t *testing.T) {
	s, err := NewStateSigner(testConfig().Session.Secret)
	require.NoError(t, err)

	state, err := s.Issue("/", "nonce-1")
	require.NoError(t, err)

	_, err = s.Verify(state, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Verify(state, "nonce-2")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Issue("/", "")
	assert.Error(t, err)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestStateDropsOffsiteRedirect(t *testing.T) {
	s, err := NewStateSigner(testConfig().Session.Secret)
	require.NoError(t, err)

	state, err := s.Issue("https://evil.example.com/", "n")
	require.NoError(t, err)
	redirect, err := s.Verify(state, "n")
	require.NoError(t, err)
	assert.Empty(t, redirect)
}

func TestStateExpires(t *testing.T) {
	s, err := NewStateSigner(testConfig().Session.Secret)
	require.NoError(t, err)

	issued := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	state, err := s.Issue("", "n")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(11 * time.Minute) }
	_, err = s.Verify(state, "n")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateRejectsOtherKey(t *testing.T) {
	a, err := NewStateSigner(testConfig().Session.Secret)
	require.NoError(t, err)
	b, err := NewStateSigner("another-secret-another-secret-xx")
	require.NoError(t, err)

	state, err := a.Issue("/", "n")
	require.NoError(t, err)
	_, err = b.Verify(state, "n")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = a.Verify("", "n")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"/calendar/1":          "/calendar/1",
		"/calendar?x=1":        "/calendar?x=1",
		"":                     "",
		"calendar":             "",
		"//evil.example.com":   "",
		`/\evil.example.com`:   "",
		"https://evil.example": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeRedirect(in), in)
	}
}
