/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package verify turns MET contingency table statistics into heat maps of
// skill by threshold and forecast lead.
package verify

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from a table.
var ErrMissingColumn = errors.New("missing column")

// Table is a whitespace-delimited MET output table.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTable reads a header line followed by data rows. Rows shorter than the
// header are padded with MET's NA marker.
func ReadTable(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	t := &Table{index: make(map[string]int)}
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if t.Header == nil {
			t.Header = fields
			for i, name := range fields {
				t.index[strings.ToUpper(name)] = i
			}
			continue
		}
		for len(fields) < len(t.Header) {
			fields = append(fields, "NA")
		}
		t.Rows = append(t.Rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if t.Header == nil {
		return nil, errors.New("read table: empty input")
	}
	return t, nil
}

// Column returns the index of name, case-insensitively.
func (t *Table) Column(name string) (int, error) {
	i, ok := t.index[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return i, nil
}
