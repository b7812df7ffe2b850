package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "marketledger"}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	vendorID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), time.Hour, AccessTokenPayload{
		UserID:   userID,
		Role:     enums.UserRoleVendor,
		VendorID: &vendorID,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.UserRoleVendor, claims.Role)
	require.NotNil(t, claims.VendorID)
	require.Equal(t, vendorID, *claims.VendorID)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleCustomer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: cfg.Issuer}, token)
	require.Error(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: cfg.Secret, Issuer: "someone-else"}, token)
	require.Error(t, err)
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: "root"})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), 0, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.Error(t, err)
}

func TestVendorTokenRequiresVendorID(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleVendor,
	})
	require.ErrorIs(t, err, ErrVendorScope)
}

func TestVerifierHonoursAudienceAndLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Audience = "settlement-api"
	cfg.Leeway = time.Minute

	// Expired 30s ago, still inside the leeway.
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour-30*time.Second), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
	})
	require.NoError(t, err)

	verifier, err := NewVerifier(cfg)
	require.NoError(t, err)
	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, enums.UserRoleAdmin, claims.Role)

	other := cfg
	other.Audience = "reporting-api"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestNewVerifierRequiresConfig(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{Issuer: "x"})
	require.ErrorIs(t, err, ErrMissingSecret)
	_, err = NewVerifier(config.JWTConfig{Secret: "x"})
	require.ErrorIs(t, err, ErrMissingIssuer)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer   abc", "abc", true},
		{"abc", "abc", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"Bearer a b", "", false},
	}
	for _, tc := range cases {
		got, ok := BearerToken(tc.header)
		require.Equal(t, tc.ok, ok, tc.header)
		require.Equal(t, tc.want, got, tc.header)
	}
}
