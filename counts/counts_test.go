package counts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const limaHeader = "IdxFirst\tIdxCombined\tIdxFirstNamed\tIdxCombinedNamed\tCounts\tMeanScore\n"

func row(first, combined, count string) string {
	return "0\t0\t" + first + "\t" + combined + "\t" + count + "\t80\n"
}

func TestParse(t *testing.T) {
	in := limaHeader +
		row("bc1001", "bc1001", "2000") +
		row("bc1002", "bc1002", "500")

	table, err := Parse(strings.NewReader(in))
	assert.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	n, ok := table.Get("output.bc1001--bc1001")
	assert.True(t, ok)
	assert.Equal(t, 2000, n)

	n, ok = table.Get("output.bc1002--bc1002")
	assert.True(t, ok)
	assert.Equal(t, 500, n)
}

func TestParseDuplicateKeyOverwrites(t *testing.T) {
	in := limaHeader +
		row("A", "B", "2000") +
		row("C", "D", "100") +
		row("A", "B", "3000")

	table, err := Parse(strings.NewReader(in))
	assert.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	n, _ := table.Get("output.A--B")
	assert.Equal(t, 3000, n)

	// first-seen order is kept
	var keys []string
	table.Each(func(key string, count int) error {
		keys = append(keys, key)
		return nil
	})
	assert.Equal(t, []string{"output.A--B", "output.C--D"}, keys)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{
			name: "HeaderMissingColumn",
			in:   "IdxFirstNamed\tCounts\n" + "A\t100\n",
			want: ErrMissingField,
		},
		{
			name: "RowTooShort",
			in:   "IdxFirstNamed\tIdxCombinedNamed\tCounts\nA\tB\n",
			want: ErrMissingField,
		},
		{
			name: "CountsNotInteger",
			in:   "IdxFirstNamed\tIdxCombinedNamed\tCounts\nA\tB\tlots\n",
			want: ErrBadCount,
		},
		{
			name: "EmptyFile",
			in:   "",
			want: ErrMissingField,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.counts"))
	assert.Error(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.lima.counts")
	err := os.WriteFile(path, []byte(limaHeader+row("bc1001", "bc1002", "4000")), 0o644)
	assert.NoError(t, err)

	table, err := Load(path)
	assert.NoError(t, err)
	n, ok := table.Get("output.bc1001--bc1002")
	assert.True(t, ok)
	assert.Equal(t, 4000, n)
}

func TestFractionCode(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		target int
		want   int
	}{
		{name: "ExactTarget", count: 1000, target: 1000, want: 100},
		{name: "Half", count: 2000, target: 1000, want: 50},
		{name: "ClampedBelowTarget", count: 500, target: 1000, want: 100},
		{name: "Third", count: 3000, target: 1000, want: 33},
		{name: "Quarter", count: 4000, target: 1000, want: 25},
		{name: "Truncates", count: 1500, target: 1000, want: 66},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frac, err := Fraction(tc.count, tc.target)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, FractionCode(frac))
		})
	}
}

func TestFractionZeroCount(t *testing.T) {
	_, err := Fraction(0, 1000)
	assert.ErrorIs(t, err, ErrZeroCount)
}

func TestWriteCommands(t *testing.T) {
	in := limaHeader +
		row("A", "B", "1000") +
		row("C", "D", "4000")

	table, err := Parse(strings.NewReader(in))
	assert.NoError(t, err)

	var buf bytes.Buffer
	err = WriteCommands(&buf, table, 1000)
	assert.NoError(t, err)

	want := "samtools view -b -s 1.100 output.A--B.bam | bamtools convert -format fastq > output.A--B.subsampled.fastq\n" +
		"samtools view -b -s 1.25 output.C--D.bam | bamtools convert -format fastq > output.C--D.subsampled.fastq\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCommandsZeroCountAborts(t *testing.T) {
	in := limaHeader +
		row("A", "B", "2000") +
		row("C", "D", "0") +
		row("E", "F", "2000")

	table, err := Parse(strings.NewReader(in))
	assert.NoError(t, err)

	var buf bytes.Buffer
	err = WriteCommands(&buf, table, 1000)
	assert.ErrorIs(t, err, ErrZeroCount)

	// the group before the bad one was emitted, nothing at or after it
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "output.A--B.bam")
}
