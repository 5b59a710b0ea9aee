// Package counts reads lima demultiplexing count reports and derives
// per-barcode-group subsampling fractions.
package counts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

var (
	// ErrMissingField is returned when the header or a data row lacks one
	// of the required columns.
	ErrMissingField = errors.New("missing required field")
	// ErrBadCount is returned when a Counts value is not an integer.
	ErrBadCount = errors.New("counts value is not an integer")
	// ErrZeroCount is returned when a group has zero reads; no fraction
	// can be computed for it and the whole run is aborted.
	ErrZeroCount = errors.New("zero read count")
)

// Required column names in the lima counts header.
const (
	colFirst    = "IdxFirstNamed"
	colCombined = "IdxCombinedNamed"
	colCounts   = "Counts"
)

// Table maps barcode-group keys to read counts, preserving the order in
// which keys first appeared in the counts file. A key seen again keeps its
// position but takes the later count.
type Table struct {
	keys   []string
	counts map[string]int
}

// Len returns the number of distinct groups.
func (t *Table) Len() int { return len(t.keys) }

// Get returns the count for key and whether the key exists.
func (t *Table) Get(key string) (int, bool) {
	n, ok := t.counts[key]
	return n, ok
}

// Each calls fn for every (key, count) pair in first-seen order.
func (t *Table) Each(fn func(key string, count int) error) error {
	for _, k := range t.keys {
		if err := fn(k, t.counts[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) set(key string, count int) {
	if _, seen := t.counts[key]; !seen {
		t.keys = append(t.keys, key)
	}
	t.counts[key] = count
}

// Key builds the barcode-group key used to name the demuxed BAM files.
func Key(first, combined string) string {
	return "output." + first + "--" + combined
}

// Load reads a tab-delimited lima counts file. The first line must be a
// header naming at least IdxFirstNamed, IdxCombinedNamed and Counts; every
// data row must carry all three. Any malformed row aborts the load.
func Load(path string) (*Table, error) {
	f, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open counts file %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads lima counts records from r. See Load.
func Parse(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("counts header: %w", ErrMissingField)
	}

	header := strings.Split(sc.Text(), "\t")
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	var cols [3]int
	for i, name := range []string{colFirst, colCombined, colCounts} {
		j, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("counts header lacks %s: %w", name, ErrMissingField)
		}
		cols[i] = j
	}

	t := &Table{counts: make(map[string]int)}
	lineno := 1
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		for _, j := range cols {
			if j >= len(fields) {
				return nil, fmt.Errorf("line %d has %d fields: %w", lineno, len(fields), ErrMissingField)
			}
		}
		n, err := strconv.Atoi(fields[cols[2]])
		if err != nil {
			return nil, fmt.Errorf("line %d Counts %q: %w", lineno, fields[cols[2]], ErrBadCount)
		}
		t.set(Key(fields[cols[0]], fields[cols[1]]), n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Fraction returns the subsampling fraction for a group of count reads
// given a target read number: target/count, clamped to 1.0.
func Fraction(count, target int) (float64, error) {
	if count == 0 {
		return 0, ErrZeroCount
	}
	frac := float64(target) / float64(count)
	if frac > 1.0 {
		frac = 1.0
	}
	return frac, nil
}

// FractionCode converts a fraction to the integer percentage passed to
// samtools view -s. Conversion truncates, matching int() semantics: a
// fraction of 1/3 yields 33, not 34.
func FractionCode(frac float64) int {
	return int(frac * 100)
}

// WriteCommands emits, for every group in table order, one shell pipeline
// that subsamples the group's BAM to target reads and converts it to FASTQ.
// The samtools seed is fixed at 1.
func WriteCommands(w io.Writer, t *Table, target int) error {
	return t.Each(func(key string, count int) error {
		frac, err := Fraction(count, target)
		if err != nil {
			return fmt.Errorf("group %s: %w", key, err)
		}
		_, err = fmt.Fprintf(w, "samtools view -b -s 1.%d %s.bam | bamtools convert -format fastq > %s.subsampled.fastq\n",
			FractionCode(frac), key, key)
		return err
	})
}
