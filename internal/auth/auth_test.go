package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, err := signToken(42, []byte("secret"), "bookshelf-api", time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(token, "."), "token does not look like a JWT: %q", token)

	claims, err := parseToken(token, []byte("secret"), "bookshelf-api", time.Now)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NotEmpty(t, claims.ID, "expected jti to be set")
	require.Equal(t, time.Hour, claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time))
}

func TestTokenRejections(t *testing.T) {
	now := time.Now()
	valid, err := signToken(7, []byte("secret"), "bookshelf-api", time.Minute, now)
	require.NoError(t, err)

	otherIssuer, _ := signToken(7, []byte("secret"), "someone-else", time.Minute, now)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "bookshelf-api",
		Subject:   "7",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}})
	wrongAlg, _ := hs512.SignedString([]byte("secret"))

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "bookshelf-api",
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}})
	nonNumeric, _ := badSubject.SignedString([]byte("secret"))

	cases := []struct {
		name   string
		token  string
		secret string
		clock  func() time.Time
	}{
		{"wrong secret", valid, "other", time.Now},
		{"expired", valid, "secret", func() time.Time { return now.Add(2 * time.Minute) }},
		{"malformed", "not.a.jwt", "secret", time.Now},
		{"empty", "", "secret", time.Now},
		{"other issuer", otherIssuer, "secret", time.Now},
		{"wrong algorithm", wrongAlg, "secret", time.Now},
		{"non numeric subject", nonNumeric, "secret", time.Now},
	}
	for _, tc := range cases {
		_, err := parseToken(tc.token, []byte(tc.secret), "bookshelf-api", tc.clock)
		require.ErrorIs(t, err, ErrInvalidToken, tc.name)
	}
}

func TestSignTokenValidation(t *testing.T) {
	_, err := signToken(0, []byte("secret"), "iss", time.Minute, time.Now())
	require.Error(t, err, "missing user id")
	_, err = signToken(1, nil, "iss", time.Minute, time.Now())
	require.Error(t, err, "missing secret")
	_, err = signToken(1, []byte("secret"), "iss", 0, time.Now())
	require.Error(t, err, "non-positive ttl")
}

func TestPasswordHashing(t *testing.T) {
	pairs := [][2]string{
		{"pw1", "pw2"},
		{"correct horse battery staple", "correct horse battery stapl"},
		{"ünïcödé", "unicode"},
		{"a", "A"},
	}
	for _, p := range pairs {
		hash, err := HashPassword(p[0], bcrypt.MinCost)
		require.NoError(t, err)
		require.NotEqual(t, p[0], hash)
		require.True(t, VerifyPassword(hash, p[0]), "%q against its own hash", p[0])
		require.False(t, VerifyPassword(hash, p[1]), "%q against hash of %q", p[1], p[0])
	}
}

func TestPasswordEdgeCases(t *testing.T) {
	_, err := HashPassword("", bcrypt.MinCost)
	require.Error(t, err, "empty password")
	_, err = HashPassword(strings.Repeat("x", 73), bcrypt.MinCost)
	require.Error(t, err, "password longer than 72 bytes")
	require.False(t, VerifyPassword("", "anything"))
	require.False(t, VerifyPassword("not-a-bcrypt-hash", "anything"))
}
