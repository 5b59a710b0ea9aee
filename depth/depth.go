// Package depth reads per-base coverage files as produced by
// `samtools depth` or `bedtools genomecov -d`.
package depth

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// HighEntropyPositions are 0-based genome positions with known high entropy
// across SARS-CoV-2 isolates, used for quick coverage spot checks.
var HighEntropyPositions = []int{
	1237, 3215, 8978, 11283, 14608, 17947, 18058, 18260, 23616, 25777, 28358,
}

// Read loads a depth file into a map from 0-based position to read depth.
// Input lines are whitespace-separated `chrom pos1 depth`. Plain and
// gzipped files are both accepted.
func Read(path string) (map[int]int, error) {
	f, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open depth file %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads depth records from r. See Read.
func Parse(r io.Reader) (map[int]int, error) {
	depths := make(map[int]int)
	err := scan(r, func(pos1, cov int) error {
		depths[pos1-1] = cov
		return nil
	})
	if err != nil {
		return nil, err
	}
	return depths, nil
}

// scan calls fn for every `chrom pos1 depth` record in input order.
func scan(r io.Reader, fn func(pos1, cov int) error) error {
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return fmt.Errorf("depth line %d: expected 3 fields, got %d", lineno, len(fields))
		}
		pos1, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("depth line %d: bad position %q", lineno, fields[1])
		}
		cov, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("depth line %d: bad depth %q", lineno, fields[2])
		}
		if err := fn(pos1, cov); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Bounds returns the smallest and largest covered 0-based positions.
// ok is false when depths is empty.
func Bounds(depths map[int]int) (min, max int, ok bool) {
	for pos := range depths {
		if !ok {
			min, max, ok = pos, pos, true
			continue
		}
		if pos < min {
			min = pos
		}
		if pos > max {
			max = pos
		}
	}
	return min, max, ok
}

// ReportAt streams depth records from r and writes `pos1 depth` for every
// record whose 0-based position is in positions. Records keep their input
// order, so multi-chromosome files repeat a position once per chromosome.
func ReportAt(w io.Writer, r io.Reader, positions []int) error {
	want := make(map[int]bool, len(positions))
	for _, pos0 := range positions {
		want[pos0] = true
	}
	return scan(r, func(pos1, cov int) error {
		if !want[pos1-1] {
			return nil
		}
		_, err := fmt.Fprintf(w, "%d %d\n", pos1, cov)
		return err
	})
}

// ReportFile is ReportAt over a plain or gzipped depth file.
func ReportFile(w io.Writer, path string, positions []int) error {
	f, err := xopen.Ropen(path)
	if err != nil {
		return fmt.Errorf("open depth file %s: %w", path, err)
	}
	defer f.Close()
	return ReportAt(w, f, positions)
}
