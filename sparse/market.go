// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadMarket reads a real, integer or pattern matrix in Matrix Market
// coordinate format. General, symmetric and skew-symmetric storage is
// supported.
func ReadMarket(r io.Reader) (*CSR, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("sparse: empty Matrix Market input")
	}
	header := strings.Fields(strings.ToLower(sc.Text()))
	if len(header) != 5 || header[0] != "%%matrixmarket" || header[1] != "matrix" {
		return nil, fmt.Errorf("sparse: invalid Matrix Market header %q", sc.Text())
	}
	if header[2] != "coordinate" {
		return nil, fmt.Errorf("sparse: unsupported Matrix Market format %q", header[2])
	}
	field, symm := header[3], header[4]
	switch field {
	case "real", "integer", "pattern":
	default:
		return nil, fmt.Errorf("sparse: unsupported Matrix Market field %q", field)
	}
	switch symm {
	case "general", "symmetric", "skew-symmetric":
	default:
		return nil, fmt.Errorf("sparse: unsupported Matrix Market symmetry %q", symm)
	}

	var rows, cols, nnz int
	sized := false
	var coo *COO
	read := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		f := strings.Fields(line)
		if !sized {
			if len(f) != 3 {
				return nil, fmt.Errorf("sparse: invalid size line %q", line)
			}
			var err error
			if rows, err = strconv.Atoi(f[0]); err != nil {
				return nil, fmt.Errorf("sparse: invalid row count: %w", err)
			}
			if cols, err = strconv.Atoi(f[1]); err != nil {
				return nil, fmt.Errorf("sparse: invalid column count: %w", err)
			}
			if nnz, err = strconv.Atoi(f[2]); err != nil {
				return nil, fmt.Errorf("sparse: invalid entry count: %w", err)
			}
			if rows <= 0 || cols <= 0 || nnz < 0 {
				return nil, fmt.Errorf("sparse: invalid size line %q", line)
			}
			coo = NewCOO(rows, cols)
			sized = true
			continue
		}
		want := 3
		if field == "pattern" {
			want = 2
		}
		if len(f) < want {
			return nil, fmt.Errorf("sparse: invalid entry line %q", line)
		}
		i, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, fmt.Errorf("sparse: invalid row index: %w", err)
		}
		j, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fmt.Errorf("sparse: invalid column index: %w", err)
		}
		i--
		j--
		if i < 0 || rows <= i || j < 0 || cols <= j {
			return nil, fmt.Errorf("sparse: entry (%d,%d) out of range", i+1, j+1)
		}
		v := 1.0
		if field != "pattern" {
			if v, err = strconv.ParseFloat(f[2], 64); err != nil {
				return nil, fmt.Errorf("sparse: invalid value: %w", err)
			}
		}
		coo.Append(i, j, v)
		if i != j {
			switch symm {
			case "symmetric":
				coo.Append(j, i, v)
			case "skew-symmetric":
				coo.Append(j, i, -v)
			}
		}
		read++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sized {
		return nil, errors.New("sparse: missing Matrix Market size line")
	}
	if read != nnz {
		return nil, fmt.Errorf("sparse: read %d entries, header declares %d", read, nnz)
	}
	return coo.CSR(), nil
}

// ReadMarketVector reads a dense real vector stored in Matrix Market array
// format with a single column.
func ReadMarketVector(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("sparse: empty Matrix Market input")
	}
	header := strings.Fields(strings.ToLower(sc.Text()))
	if len(header) < 4 || header[0] != "%%matrixmarket" || header[2] != "array" {
		return nil, fmt.Errorf("sparse: invalid Matrix Market array header %q", sc.Text())
	}
	var v []float64
	n := -1
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		f := strings.Fields(line)
		if n < 0 {
			if len(f) != 2 || f[1] != "1" {
				return nil, fmt.Errorf("sparse: expected a single column, got %q", line)
			}
			var err error
			if n, err = strconv.Atoi(f[0]); err != nil || n < 0 {
				return nil, fmt.Errorf("sparse: invalid size line %q", line)
			}
			v = make([]float64, 0, n)
			continue
		}
		x, err := strconv.ParseFloat(f[0], 64)
		if err != nil {
			return nil, fmt.Errorf("sparse: invalid value: %w", err)
		}
		v = append(v, x)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n < 0 || len(v) != n {
		return nil, fmt.Errorf("sparse: read %d values, header declares %d", len(v), n)
	}
	return v, nil
}
