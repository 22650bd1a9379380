package sacc

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// readColumns reads a whitespace-separated numeric table. Lines starting
// with '#' are comments; the last comment before the first data row, if it
// has one word per column, names the columns.
func readColumns(r io.Reader) (names []string, cols [][]float64, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var header []string
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if cols == nil {
				header = strings.Fields(strings.TrimPrefix(text, "#"))
			}
			continue
		}
		fields := strings.Fields(text)
		if cols == nil {
			cols = make([][]float64, len(fields))
		}
		if len(fields) != len(cols) {
			return nil, nil, gskyerr.Data("ragged table").With("line", line).
				With("want", len(cols)).With("got", len(fields))
		}
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, gskyerr.Data("non-numeric value").With("line", line).WithCause(err)
			}
			cols[i] = append(cols[i], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if cols == nil {
		return nil, nil, gskyerr.Data("table has no rows")
	}
	if len(header) == len(cols) {
		names = header
	}
	return names, cols, nil
}

// readMatrix reads a square matrix, one row per line.
func readMatrix(r io.Reader) ([][]float64, error) {
	_, cols, err := readColumns(r)
	if err != nil {
		return nil, err
	}
	n := len(cols)
	if len(cols[0]) != n {
		return nil, gskyerr.Data("matrix is not square").With("rows", len(cols[0])).With("columns", n)
	}
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = cols[j][i]
		}
	}
	return m, nil
}
