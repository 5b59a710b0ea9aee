// Package pileup parses `samtools mpileup` output.
//
// Column layout (http://www.htslib.org/doc/samtools.html):
//
//	1 chrom, 2 1-based position, 3 ref base, 4 coverage,
//	5 read bases, 6 base qualities, 7 alignment qualities
//
// Read-base symbols: `.`/`,` match ref on fwd/rev strand, `ACGTN`/`acgtn`
// mismatch, `>`/`<` reference skip, `*` deletion placeholder, `^` read
// start (followed by a mapping-quality char), `$` read end,
// `+{n}{bases}`/`-{n}{bases}` insertion/deletion following the base.
package pileup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// Record is one mpileup line plus per-observation counts.
type Record struct {
	Chrom string
	Pos   int    // 0-based
	Ref   string // upper-cased reference base
	Cov   int    // column 4 coverage

	// Counts maps an observation to how often it was seen. Keys are a
	// base (case carries strand: `A` fwd, `a` rev), an insertion like
	// `+2AT`, or a deletion like `-3acg`.
	Counts map[string]int

	// NCov is the coverage from plain bases only (no indels or skips);
	// NTypes is how many distinct plain bases were observed.
	NCov   int
	NTypes int
}

// Base returns the combined fwd+rev strand count for a base observation.
func (r *Record) Base(b string) int {
	return r.Counts[strings.ToUpper(b)] + r.Counts[strings.ToLower(b)]
}

// parseReadBase fills in Counts from the read-base string. The number of
// observations parsed must agree with the coverage column.
func (r *Record) parseReadBase(readBase string) error {
	seen := 0
	i := 0
	for i < len(readBase) {
		b := readBase[i]
		switch {
		case b == '>' || b == '<':
			seen++
			i++
		case b == '*':
			seen++
			i++
		case b == '^':
			// read start marker plus mapping quality char plus the base,
			// the base itself is counted on the next iteration
			i += 2
		case b == '$':
			i++
		case b == '.':
			r.Counts[r.Ref]++
			seen++
			i++
		case b == ',':
			r.Counts[strings.ToLower(r.Ref)]++
			seen++
			i++
		case strings.IndexByte("ACGTNacgtn", b) >= 0:
			r.Counts[string(b)]++
			seen++
			i++
		case b == '+' || b == '-':
			// indel attaches to the preceding base, no extra observation
			end, err := r.countIndel(readBase, i)
			if err != nil {
				return err
			}
			i = end
		default:
			return fmt.Errorf("pileup %s:%d: unknown symbol %q in read bases", r.Chrom, r.Pos+1, b)
		}
	}
	if seen != r.Cov && !(readBase == "*" && r.Cov == 0) {
		return fmt.Errorf("pileup %s:%d: parsed %d observations but coverage is %d", r.Chrom, r.Pos+1, seen, r.Cov)
	}
	for _, b := range []string{"A", "T", "C", "G", "N", "a", "t", "c", "g", "n"} {
		if n := r.Counts[b]; n > 0 {
			r.NCov += n
			r.NTypes++
		}
	}
	return nil
}

// countIndel consumes `+{n}{bases}` or `-{n}{bases}` starting at the sign
// and records it under a key including the sign and length, e.g. `+2AT`.
func (r *Record) countIndel(readBase string, start int) (int, error) {
	i := start + 1
	numStart := i
	for i < len(readBase) && readBase[i] >= '0' && readBase[i] <= '9' {
		i++
	}
	if i == numStart {
		return 0, fmt.Errorf("pileup %s:%d: indel without length at offset %d", r.Chrom, r.Pos+1, start)
	}
	n, err := strconv.Atoi(readBase[numStart:i])
	if err != nil {
		return 0, err
	}
	if i+n > len(readBase) {
		return 0, fmt.Errorf("pileup %s:%d: truncated indel sequence", r.Chrom, r.Pos+1)
	}
	r.Counts[readBase[start:i+n]] += 1
	return i + n, nil
}

// ParseLine parses one mpileup line. Lines with 7 (or 15, multi-sample)
// columns carry read bases; 4-column lines occur when base-quality
// filtering removed every observation and parse as zero coverage.
func ParseLine(line string) (*Record, error) {
	raw := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(raw) != 7 && len(raw) != 15 && len(raw) != 4 {
		return nil, fmt.Errorf("pileup: expected 7 columns, got %d in line %q", len(raw), line)
	}
	pos1, err := strconv.Atoi(raw[1])
	if err != nil {
		return nil, fmt.Errorf("pileup: bad position %q", raw[1])
	}
	r := &Record{
		Chrom:  raw[0],
		Pos:    pos1 - 1,
		Ref:    strings.ToUpper(raw[2]),
		Counts: make(map[string]int),
	}
	if len(raw) == 4 {
		return r, nil
	}
	cov, err := strconv.Atoi(raw[3])
	if err != nil {
		return nil, fmt.Errorf("pileup: bad coverage %q", raw[3])
	}
	r.Cov = cov
	if err := r.parseReadBase(raw[4]); err != nil {
		return nil, err
	}
	return r, nil
}

// Reader iterates over mpileup records.
type Reader struct {
	sc  *bufio.Scanner
	cls io.Closer
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<24) // deep positions have long read-base strings
	return &Reader{sc: sc}
}

// Open reads records from a plain or gzipped mpileup file.
func Open(path string) (*Reader, error) {
	f, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open mpileup file %s: %w", path, err)
	}
	r := NewReader(f)
	r.cls = f
	return r, nil
}

// Read returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Read() (*Record, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return ParseLine(r.sc.Text())
}

// Close closes the underlying file, if the Reader owns one.
func (r *Reader) Close() error {
	if r.cls == nil {
		return nil
	}
	return r.cls.Close()
}

// ReadAll loads an entire mpileup file into a map from 0-based position to
// record.
func ReadAll(path string) (map[int]*Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	records := make(map[int]*Record)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records[rec.Pos] = rec
	}
	return records, nil
}
