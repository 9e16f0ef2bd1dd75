package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestAuthServiceRoundTrip(t *testing.T) {
	s := newTestAuth()

	token, err := s.GenerateCandidateToken("cand-7", "Ana")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cand-7", claims.CandidateID())
	assert.Equal(t, TokenTypeCandidate, claims.TokenType)
	assert.Equal(t, "Ana", claims.Name)
}

func TestAuthServiceRejects(t *testing.T) {
	s := newTestAuth()
	valid, err := s.GenerateCandidateToken("cand-7", "")
	require.NoError(t, err)

	other := NewAuthService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour})
	foreign, err := other.GenerateCandidateToken("cand-7", "")
	require.NoError(t, err)

	expired := newTestAuth()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateCandidateToken("cand-7", "")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TokenType: TokenTypeCandidate})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{TokenType: TokenTypeCandidate}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := map[string]struct {
		token  string
		expErr error
	}{
		"Garbage should be rejected.":                {token: "not-a-token"},
		"Another secret should be rejected.":         {token: foreign},
		"Expired tokens should be rejected.":         {token: old, expErr: ErrTokenExpired},
		"Unsigned tokens should be rejected.":        {token: unsigned},
		"Tokens without subject should be rejected.": {token: noSubject, expErr: ErrMissingCandidate},
		"Truncated tokens should be rejected.":       {token: valid[:len(valid)-4]},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.ValidateToken(test.token)
			require.Error(t, err)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			}
		})
	}
}

func TestGenerateCandidateTokenRejectsUnsafeIDs(t *testing.T) {
	s := NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour})

	_, err := s.GenerateCandidateToken("", "")
	assert.ErrorIs(t, err, ErrMissingCandidate)

	_, err = s.GenerateCandidateToken("../etc", "")
	assert.ErrorIs(t, err, ErrInvalidCandidate)
}
