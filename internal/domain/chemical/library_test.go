package chemical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/pkg/errors"
)

func TestReadLibraryCSV(t *testing.T) {
	t.Run("parses valid library", func(t *testing.T) {
		csv := "Name,SMILES,Plant,Category\n" +
			"Quercetin,CCO,Sophora japonica,flavonoid\n" +
			"Gallic acid,OCC,Rhus chinensis,phenolic acid\n"
		lib, err := ReadLibraryCSV(strings.NewReader(csv), nil)
		require.NoError(t, err)
		require.Len(t, lib.Chemicals, 2)
		assert.Equal(t, 0, lib.Skipped)
		assert.Equal(t, "Quercetin", lib.Chemicals[0].ID)
		assert.Equal(t, "Gallic_acid", lib.Chemicals[1].ID)

		chem, ok := lib.ByID("Gallic_acid")
		require.True(t, ok)
		assert.Equal(t, "phenolic acid", chem.Category)
	})

	t.Run("header matching is case-insensitive", func(t *testing.T) {
		csv := "name,smiles\nRutin,CCO\n"
		lib, err := ReadLibraryCSV(strings.NewReader(csv), nil)
		require.NoError(t, err)
		assert.Len(t, lib.Chemicals, 1)
	})

	t.Run("skips malformed rows and reports them", func(t *testing.T) {
		csv := "Name,SMILES\n" +
			"Quercetin,CCO\n" +
			",missing-name\n" +
			"Bad smiles,CC{O}\n"
		var skipped []int
		lib, err := ReadLibraryCSV(strings.NewReader(csv), func(line int, err error) {
			skipped = append(skipped, line)
		})
		require.NoError(t, err)
		assert.Len(t, lib.Chemicals, 1)
		assert.Equal(t, 2, lib.Skipped)
		assert.Equal(t, []int{3, 4}, skipped)
	})

	t.Run("duplicate IDs keep the first occurrence", func(t *testing.T) {
		csv := "Name,SMILES\n" +
			"Rutin,CCO\n" +
			"Rutin,OCC\n"
		lib, err := ReadLibraryCSV(strings.NewReader(csv), nil)
		require.NoError(t, err)
		require.Len(t, lib.Chemicals, 1)
		assert.Equal(t, "CCO", lib.Chemicals[0].SMILES)
		assert.Equal(t, 1, lib.Skipped)
	})

	t.Run("missing required column is fatal", func(t *testing.T) {
		_, err := ReadLibraryCSV(strings.NewReader("Name,Plant\nQuercetin,x\n"), nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInputParseFailed, errors.GetCode(err))
	})

	t.Run("all rows malformed is fatal", func(t *testing.T) {
		_, err := ReadLibraryCSV(strings.NewReader("Name,SMILES\n,CCO\n"), nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInputParseFailed, errors.GetCode(err))
	})
}
