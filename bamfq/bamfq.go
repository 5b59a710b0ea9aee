// Package bamfq subsamples BAM records to FASTQ in-process, the same job
// as the `samtools view -s | bamtools convert -format fastq` pipeline the
// subsample tool prints.
package bamfq

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/klauspost/pgzip"
)

// Keep reports whether a read named name survives subsampling at frac with
// the given seed. The decision hashes only seed and name, so both mates of
// a pair always agree, matching the samtools -s contract.
func Keep(name string, frac float64, seed int) bool {
	if frac >= 1.0 {
		return true
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", seed, name)
	return float64(h.Sum64()%10000)/10000.0 < frac
}

// Result counts records seen and written by one Subsample call.
type Result struct {
	Total int
	Kept  int
}

// Subsample streams bamPath, keeps each primary record with probability
// frac (deterministic per read name) and writes FASTQ to fastqPath,
// gzip-compressed when the name ends in .gz. Secondary and supplementary
// alignments are skipped; reverse-strand records are written in original
// read orientation.
func Subsample(bamPath, fastqPath string, frac float64, seed int) (*Result, error) {
	in, err := os.Open(bamPath)
	if err != nil {
		return nil, fmt.Errorf("open BAM %s: %w", bamPath, err)
	}
	defer in.Close()

	br, err := bam.NewReader(in, 0)
	if err != nil {
		return nil, fmt.Errorf("read BAM %s: %w", bamPath, err)
	}
	defer br.Close()

	out, err := os.Create(fastqPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	var w *bufio.Writer
	if strings.HasSuffix(fastqPath, ".gz") {
		gz := pgzip.NewWriter(out)
		defer gz.Close()
		w = bufio.NewWriter(gz)
	} else {
		w = bufio.NewWriter(out)
	}

	res := &Result{}
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		res.Total++
		if !Keep(rec.Name, frac, seed) {
			continue
		}
		if err := writeFastq(w, rec); err != nil {
			return nil, err
		}
		res.Kept++
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return res, nil
}

func writeFastq(w *bufio.Writer, rec *sam.Record) error {
	seq := rec.Seq.Expand()
	qual := make([]byte, len(rec.Qual))
	for i, q := range rec.Qual {
		qual[i] = q + 33
	}
	if rec.Flags&sam.Reverse != 0 {
		seq = reverseComplement(seq)
		reverse(qual)
	}

	w.WriteByte('@')
	w.WriteString(rec.Name)
	w.WriteByte('\n')
	w.Write(seq)
	w.WriteString("\n+\n")
	w.Write(qual)
	return w.WriteByte('\n')
}

var complement = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	for _, p := range [][2]byte{
		{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'},
		{'a', 't'}, {'c', 'g'}, {'g', 'c'}, {'t', 'a'},
		{'N', 'N'}, {'n', 'n'},
	} {
		t[p[0]] = p[1]
	}
	return t
}()

func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complement[b]
	}
	return out
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
