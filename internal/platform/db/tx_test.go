package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("append event: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("could not serialize access")))
	require.False(t, IsSerializationFailure(nil))
}

func TestSchemaProjectsImportedQty(t *testing.T) {
	require.Contains(t, Schema(), "imported_qty NUMERIC(18,4) NOT NULL DEFAULT 0")
	require.Contains(t, Schema(), "ADD COLUMN IF NOT EXISTS imported_qty")
}
