package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims, err := buildClaims(mintOptions{
		issuer:   "https://localhost:9000",
		audience: "salesql, reports",
		subject:  "analyst",
		tables:   "tbl_primary, tbl_product_master",
		route:    " Primary ",
		expires:  time.Hour,
	}, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"salesql", "reports"}, claims["aud"])
	assert.Equal(t, []string{"tbl_primary", "tbl_product_master"}, claims["salesql_tables"])
	assert.Equal(t, "primary", claims["salesql_route"])
	assert.Equal(t, now.Add(time.Hour).Unix(), claims["exp"])

	claims, err = buildClaims(mintOptions{audience: "salesql", expires: time.Minute}, now)
	require.NoError(t, err)
	assert.NotContains(t, claims, "salesql_tables")
	assert.NotContains(t, claims, "salesql_route")

	_, err = buildClaims(mintOptions{route: "returns"}, now)
	assert.Error(t, err)
}

func TestEnsureKeyPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "jwt_private.pem")
	require.NoError(t, ensureKeyPair(path, 1024))

	first, err := loadPrivateKey(path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "jwt_private.pub.pem"))

	require.NoError(t, ensureKeyPair(path, 1024))
	second, err := loadPrivateKey(path)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}
