package chemical

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Library is the validated chemical library for one screening run, in file
// order.  IDs are unique within a library.
type Library struct {
	Chemicals []Chemical

	// Skipped counts records that failed validation and were dropped.
	Skipped int
}

// ByID returns the chemical with the given ID, or false when absent.
func (l *Library) ByID(id string) (Chemical, bool) {
	for _, c := range l.Chemicals {
		if c.ID == id {
			return c, true
		}
	}
	return Chemical{}, false
}

// requiredColumns are the header names a library CSV must carry.  Matching is
// case-insensitive; Plant and Category are optional.
var requiredColumns = []string{"name", "smiles"}

// ReadLibraryCSV parses a chemical library from CSV with a header row of at
// least Name and SMILES, plus optional Plant and Category columns.
//
// Malformed rows are skipped, counted in Library.Skipped, and reported through
// onSkip (which may be nil).  A missing required column is a hard INP error:
// without it no row can be interpreted.  Duplicate IDs keep the first
// occurrence so downstream join keys stay unique.
func ReadLibraryCSV(r io.Reader, onSkip func(line int, err error)) (*Library, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParseFailed, "failed to read library header")
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, errors.Newf(errors.ErrCodeInputParseFailed,
				"library is missing required column %q", col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	lib := &Library{}
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			lib.Skipped++
			if onSkip != nil {
				onSkip(line, errors.Wrap(err, errors.ErrCodeInputMalformed, "unreadable CSV row"))
			}
			continue
		}

		chem, err := NewChemical(cell(row, "name"), cell(row, "smiles"),
			cell(row, "plant"), cell(row, "category"))
		if err != nil {
			lib.Skipped++
			if onSkip != nil {
				onSkip(line, err)
			}
			continue
		}
		if seen[chem.ID] {
			lib.Skipped++
			if onSkip != nil {
				onSkip(line, errors.InvalidInput(fmt.Sprintf("duplicate chemical id %q", chem.ID)))
			}
			continue
		}
		seen[chem.ID] = true
		lib.Chemicals = append(lib.Chemicals, chem)
	}

	if len(lib.Chemicals) == 0 {
		return nil, errors.New(errors.ErrCodeInputParseFailed, "library contains no usable chemicals")
	}
	return lib, nil
}
