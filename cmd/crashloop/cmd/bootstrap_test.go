package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapTables(t *testing.T) {
	all, err := bootstrapTables(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	all, err = bootstrapTables([]string{"crash", "all"})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	some, err := bootstrapTables([]string{"bank", "inventory-reg"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "bank_table", some[0].Name)
	assert.Equal(t, "inventory_table_reg", some[1].Name)

	_, err = bootstrapTables([]string{"orders"})
	assert.Error(t, err)
}
