// Package training turns labeled clips into training tables and trains,
// evaluates and persists chord models from them.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/chords"
)

// LabelColumn names the label column of a training table.
const LabelColumn = "Chord"

// Header is the first row of every training table.
var Header = func() []string {
	h := make([]string, 0, chroma.NumPitchClasses+1)
	h = append(h, chroma.PitchClassNames[:]...)
	return append(h, LabelColumn)
}()

// Example is one training row.
type Example struct {
	Profile chroma.Profile
	Label   chords.Label
}

// WriteTable writes rows as comma separated values with a header.
func WriteTable(w io.Writer, rows []Example) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	record := make([]string, len(Header))
	for _, row := range rows {
		for pc, v := range row.Profile {
			record[pc] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[chroma.NumPitchClasses] = row.Label.String()
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableFile writes rows to path through a temporary file, so readers
// never see a half-written table.
func WriteTableFile(path string, rows []Example) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".table-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = WriteTable(tmp, rows); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadTable parses a training table. Columns are positional: twelve pitch
// class energies from C to B, then the label column. Pitch class headers may
// use any spelling; the last header must be LabelColumn, in any case.
func ReadTable(r io.Reader) ([]Example, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty training table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	label := strings.TrimSpace(header[chroma.NumPitchClasses])
	if !strings.EqualFold(label, LabelColumn) {
		return nil, fmt.Errorf("unexpected label column %q, want %q", label, LabelColumn)
	}

	var rows []Example
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		var row Example
		for pc := 0; pc < chroma.NumPitchClasses; pc++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[pc]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, Header[pc], err)
			}
			row.Profile[pc] = v
		}
		row.Label, err = chords.ParseLabel(record[chroma.NumPitchClasses])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadTableFile parses the table at path.
func ReadTableFile(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadTables concatenates the rows of every table in order.
func ReadTables(paths ...string) ([]Example, error) {
	var all []Example
	for _, p := range paths {
		rows, err := ReadTableFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// ListTables returns the *.csv files directly inside dir, sorted. A missing
// directory has no tables.
func ListTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Features splits rows into model inputs and vocabulary indices.
func Features(rows []Example) ([][]float64, []int) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, row := range rows {
		x[i] = row.Profile.Slice()
		y[i] = row.Label.Index()
	}
	return x, y
}
