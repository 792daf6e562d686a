package main

import (
	"bytes"
	"strings"
	"testing"

	"metarest/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestMigratePrint(t *testing.T) {
	out := run(t, "migrate", "--print", "--config", "missing.yaml", "--env-file", "missing.env")

	assert.Contains(t, out, `create table if not exists "customers"`)
	assert.Contains(t, out, `create table if not exists "attachments"`)
	assert.Contains(t, out, `"customers_email_id_uq"`)
	assert.Less(t, strings.Index(out, "-- 100_attachments"), strings.Index(out, "-- 200_attachments"))
}

func TestTokenCommand(t *testing.T) {
	out := run(t, "token", "--auth-secret", "s3cret", "--user", "7", "--perm", "READ CUSTOMER",
		"--config", "missing.yaml", "--env-file", "missing.env")

	claims, err := auth.NewTokenService("s3cret").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	require.Len(t, claims.Permissions, 1)
	assert.Equal(t, "READ CUSTOMER", claims.Permissions[0].Title)
}
