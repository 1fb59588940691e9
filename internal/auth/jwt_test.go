package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testJWT() *JWTService {
	return NewJWTService(&JWTConfig{
		SecretKey:            []byte("test-secret"),
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
		Issuer:               "qrlinks-test",
	})
}

func TestJWT_IssueAndValidate(t *testing.T) {
	svc := testJWT()

	pair, err := svc.IssuePair(42, "a@b.io")
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := svc.ValidateToken(pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "a@b.io", claims.Email)

	_, err = svc.ValidateToken(pair.RefreshToken, TokenRefresh)
	require.NoError(t, err)
}

func TestJWT_TokenTypeIsEnforced(t *testing.T) {
	svc := testJWT()
	pair, err := svc.IssuePair(1, "a@b.io")
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.RefreshToken, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateToken(pair.AccessToken, TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_Expired(t *testing.T) {
	svc := testJWT()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := svc.IssuePair(1, "a@b.io")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(pair.AccessToken, TokenAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWT_RejectsForeignTokens(t *testing.T) {
	svc := testJWT()

	other := NewJWTService(&JWTConfig{SecretKey: []byte("other"), AccessTokenDuration: time.Minute, Issuer: "qrlinks-test"})
	pair, err := other.IssuePair(1, "a@b.io")
	require.NoError(t, err)
	_, err = svc.ValidateToken(pair.AccessToken, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TokenType: TokenAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = svc.ValidateToken("garbage", TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer abc"))
	assert.Empty(t, ExtractTokenFromBearer("Basic abc"))
	assert.Empty(t, ExtractTokenFromBearer("Bearer "))
	assert.Empty(t, ExtractTokenFromBearer(""))
}

func TestPasswordService(t *testing.T) {
	svc := NewPasswordService(bcrypt.MinCost)

	hash, err := svc.HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, svc.VerifyPassword(hash, "s3cret!"))
	assert.ErrorIs(t, svc.VerifyPassword(hash, "wrong"), ErrInvalidPassword)

	_, err = svc.HashPassword("")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	assert.Equal(t, DefaultBcryptCost, NewPasswordService(0).cost)
	assert.Equal(t, bcrypt.MaxCost, NewPasswordService(99).cost)
}

func TestIsValidPassword(t *testing.T) {
	assert.ErrorIs(t, IsValidPassword("12345"), ErrPasswordLength)
	assert.NoError(t, IsValidPassword("123456"))
	assert.NoError(t, IsValidPassword(string(make([]byte, 72))))
	assert.ErrorIs(t, IsValidPassword(string(make([]byte, 73))), ErrPasswordLength)
}
