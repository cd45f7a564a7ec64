package progress_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/stage"
)

// mustCatalog builds a catalog holding only A1, so B1 passes shape
// validation but is unknown.
func mustCatalog(t *testing.T) *stage.Catalog {
	t.Helper()
	c, err := stage.NewCatalog([]stage.Stage{{ID: 1, Code: "A1"}})
	require.NoError(t, err)
	return c
}
