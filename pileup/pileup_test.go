package pileup

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLineMatches(t *testing.T) {
	rec, err := ParseLine("NC_045512.2\t100\tg\t5\t..,,.\tIIIII\t]]]]]")
	assert.NoError(t, err)
	assert.Equal(t, "NC_045512.2", rec.Chrom)
	assert.Equal(t, 99, rec.Pos)
	assert.Equal(t, "G", rec.Ref)
	assert.Equal(t, 5, rec.Cov)
	assert.Equal(t, 3, rec.Counts["G"])
	assert.Equal(t, 2, rec.Counts["g"])
	assert.Equal(t, 5, rec.Base("G"))
	assert.Equal(t, 5, rec.NCov)
	assert.Equal(t, 2, rec.NTypes)
}

func TestParseLineMismatchesAndMarkers(t *testing.T) {
	// read start (^I), read end ($), a mismatch on each strand
	rec, err := ParseLine("chr\t10\tA\t4\t^I..$Tt\tIIII\t]]]]")
	assert.NoError(t, err)
	assert.Equal(t, 2, rec.Counts["A"])
	assert.Equal(t, 1, rec.Counts["T"])
	assert.Equal(t, 1, rec.Counts["t"])
	assert.Equal(t, 2, rec.Base("T"))
}

func TestParseLineIndels(t *testing.T) {
	// insertion of AT after a ref match and a 2-base deletion on reverse
	rec, err := ParseLine("chr\t10\tA\t3\t.+2AT,-2tg.\tIII\t]]]")
	assert.NoError(t, err)
	assert.Equal(t, 3, rec.Cov)
	assert.Equal(t, 1, rec.Counts["+2AT"])
	assert.Equal(t, 1, rec.Counts["-2tg"])
	assert.Equal(t, 2, rec.Counts["A"])
	assert.Equal(t, 1, rec.Counts["a"])
	// indels are not part of the plain-base coverage
	assert.Equal(t, 3, rec.NCov)
}

func TestParseLineDeletionPlaceholderAndSkips(t *testing.T) {
	rec, err := ParseLine("chr\t10\tC\t4\t.*><\tIIII\t]]]]")
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.Counts["C"])
	assert.Equal(t, 1, rec.NCov)
	assert.Equal(t, 1, rec.NTypes)
}

func TestParseLineZeroCoverage(t *testing.T) {
	// after --min-BQ filtering there may be no bases left, 4 columns only
	rec, err := ParseLine("fake\t8729\tT\t0")
	assert.NoError(t, err)
	assert.Equal(t, 0, rec.Cov)
	assert.Equal(t, 8728, rec.Pos)
	assert.Empty(t, rec.Counts)
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "WrongColumnCount", line: "chr\t10\tA"},
		{name: "CoverageMismatch", line: "chr\t10\tA\t5\t..\tII\t]]"},
		{name: "UnknownSymbol", line: "chr\t10\tA\t1\t!\tI\t]"},
		{name: "TruncatedIndel", line: "chr\t10\tA\t1\t.+5AT\tI\t]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(tc.line)
			assert.Error(t, err)
		})
	}
}

func TestReader(t *testing.T) {
	in := "chr\t1\tA\t2\t..\tII\t]]\n" +
		"chr\t2\tC\t1\t,\tI\t]\n"

	r := NewReader(strings.NewReader(in))
	rec, err := r.Read()
	assert.NoError(t, err)
	assert.Equal(t, 0, rec.Pos)

	rec, err = r.Read()
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.Pos)
	assert.Equal(t, 1, rec.Counts["c"])

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}
