package auth

import (
	"testing"
	"time"

	"github.com/commitkings/commitkings/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier([]byte("test-signing-key"))
	assert.NoError(t, err, "expected no error with a non-empty key")
	assert.NotNil(t, v)

	_, err = NewVerifier(nil)
	assert.Error(t, err, "expected error with an empty key")
}

func TestIssueAndVerifyToken(t *testing.T) {
	v, err := NewVerifier([]byte("test-signing-key"))
	require.NoError(t, err)

	user := types.User{
		Id:      "u-1",
		Name:    "Test User",
		Role:    types.RoleReviewer,
		OrgCode: "acme",
	}

	token, err := v.IssueToken(user, time.Hour)
	require.NoError(t, err, "expected token to be issued")
	require.NotEmpty(t, token)

	identity, err := v.VerifyToken(token)
	assert.NoError(t, err, "expected token to verify")
	assert.Equal(t, user.Id, identity.UserId, "expected user id claim to round-trip")
	assert.Equal(t, types.RoleReviewer, identity.Role, "expected role claim to round-trip")
	assert.Equal(t, "acme", identity.OrgCode, "expected org claim to round-trip")
}

func TestVerifyToken_Invalid(t *testing.T) {
	v, err := NewVerifier([]byte("test-signing-key"))
	require.NoError(t, err)

	tcases := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty token",
			token: func(t *testing.T) string { return "" },
		},
		{
			name:  "garbage token",
			token: func(t *testing.T) string { return "not-a-jwt" },
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				token, err := v.IssueToken(types.User{Id: "u-1"}, -time.Minute)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "token signed with a different key",
			token: func(t *testing.T) string {
				other, err := NewVerifier([]byte("another-key"))
				require.NoError(t, err)
				token, err := other.IssueToken(types.User{Id: "u-1"}, time.Hour)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "token without a user id",
			token: func(t *testing.T) string {
				token, err := v.IssueToken(types.User{}, time.Hour)
				require.NoError(t, err)
				return token
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyToken(tc.token(t))
			assert.ErrorIs(t, err, ErrUnauthorized, "expected ErrUnauthorized")
		})
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
	assert.False(t, VerifyPassword("not-a-hash", "anything"))
}
