package vcfcons

import (
	"strings"

	"github.com/jrharting/CoSA/depth"
)

// Consensus is a reference sequence being edited into a consensus call.
// Each reference position holds a string: its original base, "N" when
// masked, or a multi-base string when an insertion was applied at that
// anchor. Deleted positions stay in place but are skipped on output so
// fragment names keep reference coordinates.
type Consensus struct {
	bases   []string
	deleted []bool
}

// NewConsensus starts from the reference sequence.
func NewConsensus(refseq []byte) *Consensus {
	c := &Consensus{
		bases:   make([]string, len(refseq)),
		deleted: make([]bool, len(refseq)),
	}
	for i, b := range refseq {
		c.bases[i] = string(b)
	}
	return c
}

// Len returns the reference length.
func (c *Consensus) Len() int { return len(c.bases) }

// MaskLowCoverage sets every position whose depth is missing or below
// minCoverage to N, and forces the stretches before the first and from the
// last covered position to N.
func (c *Consensus) MaskLowCoverage(depths map[int]int, minCoverage int) {
	for pos := range c.bases {
		if d, ok := depths[pos]; !ok || d < minCoverage {
			c.bases[pos] = "N"
		}
	}
	min, max, ok := depth.Bounds(depths)
	if !ok {
		for pos := range c.bases {
			c.bases[pos] = "N"
		}
		return
	}
	for pos := 0; pos < min && pos < len(c.bases); pos++ {
		c.bases[pos] = "N"
	}
	for pos := max; pos < len(c.bases); pos++ {
		c.bases[pos] = "N"
	}
}

// ApplySub writes alt (possibly several consecutive bases) starting at
// 0-based position pos0.
func (c *Consensus) ApplySub(pos0 int, alt string) {
	for i := 0; i < len(alt) && pos0+i < len(c.bases); i++ {
		c.bases[pos0+i] = string(alt[i])
	}
}

// ApplyIns replaces the anchor base at pos0 with the full ALT string, so
// the inserted bases ride along with the anchor.
func (c *Consensus) ApplyIns(pos0 int, alt string) {
	if pos0 < len(c.bases) {
		c.bases[pos0] = alt
	}
}

// ApplyDel removes n bases following the anchor at pos0.
func (c *Consensus) ApplyDel(pos0, n int) {
	for i := 1; i <= n && pos0+i < len(c.bases); i++ {
		c.deleted[pos0+i] = true
	}
}

// Sequence returns the consensus over [start0, end1), skipping deleted
// positions.
func (c *Consensus) Sequence(start0, end1 int) string {
	var sb strings.Builder
	for pos := start0; pos < end1 && pos < len(c.bases); pos++ {
		if c.deleted[pos] {
			continue
		}
		sb.WriteString(c.bases[pos])
	}
	return sb.String()
}

// Fragment is a maximal run of called (non-N) consensus sequence.
type Fragment struct {
	Start0 int // 0-based reference position of the first base
	Seq    string
}

// Fragments splits the consensus at Ns. Deleted positions neither start
// nor break a fragment.
func (c *Consensus) Fragments() []Fragment {
	var frags []Fragment
	i := 0
	for i < len(c.bases) {
		if c.deleted[i] || c.bases[i] == "N" {
			i++
			continue
		}
		j := i + 1
		for j < len(c.bases) && (c.deleted[j] || c.bases[j] != "N") {
			j++
		}
		frags = append(frags, Fragment{Start0: i, Seq: c.Sequence(i, j)})
		i = j + 1
	}
	return frags
}
