package lake

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// readTable loads a layer file, validates its header against the layer's
// fixed columns, and returns the data rows.
func readTable(path string, columns []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err == io.EOF {
		return nil, eris.Wrapf(model.ErrSchema, "%s is empty, want header %s", path, strings.Join(columns, ","))
	}
	if err != nil {
		return nil, eris.Wrapf(model.ErrSchema, "read header of %s: %v", path, err)
	}
	if err := matchHeader(header, columns); err != nil {
		return nil, eris.Wrapf(err, "%s", path)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(model.ErrSchema, "malformed row in %s: %v", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// matchHeader requires the header to carry exactly the layer columns, in
// order. Layer files are contracts; a renamed or reordered column is a
// schema failure, not something to paper over.
func matchHeader(got, want []string) error {
	ok := len(got) == len(want)
	if ok {
		for i := range want {
			if strings.TrimSpace(got[i]) != want[i] {
				ok = false
				break
			}
		}
	}
	if !ok {
		return eris.Wrapf(model.ErrSchema, "header mismatch: got %s, want %s",
			strings.Join(got, ","), strings.Join(want, ","))
	}
	return nil
}

// writeTable writes a layer file wholesale: header first, then rows. The
// parent directory is created as needed and an existing file is replaced.
func writeTable(path string, columns []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return eris.Wrapf(err, "write header of %s", path)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return eris.Wrapf(err, "write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrapf(err, "flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return nil
}

// parseID parses an identity cell. Identity corruption is unrecoverable, so
// this is strict where points coercion is tolerant.
func parseID(field, cell string, row int) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrParse, "%s %q at row %d is not an integer", field, cell, row)
	}
	return v, nil
}
