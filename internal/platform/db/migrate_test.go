package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range strings.Split(Schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		require.Contains(t, stmt, "IF NOT EXISTS", stmt)
	}
}

func TestSchemaGuardsDoubleReversal(t *testing.T) {
	require.Contains(t, Schema(), "ON import_shipment_ledger (movement_id) WHERE kind = 'reverse'")
}
