// Package vcfcons builds a consensus sequence by applying filtered VCF
// variants to a reference, masking positions without enough read depth.
package vcfcons

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/brentp/vcfgo"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"

	"github.com/jrharting/CoSA/depth"
	"github.com/jrharting/CoSA/pileup"
)

// VCF flavors with distinct depth/allele-depth conventions.
const (
	VCFTypePBAA        = "pbaa"
	VCFTypeDeepVariant = "deepvariant"
	VCFTypeCLC         = "CLC"
	VCFTypeBCFTools    = "bcftools"
)

// VCFTypes lists the accepted --vcf_type values.
var VCFTypes = []string{VCFTypePBAA, VCFTypeDeepVariant, VCFTypeCLC, VCFTypeBCFTools}

// Options control variant filtering.
type Options struct {
	MinCoverage int     // positions and variants below this depth are masked/ignored
	MinAltFreq  float64 // variants below this ALT frequency keep the reference base
	MinQual     float64 // variants below this QUAL are ignored
	UseVCFInfo  bool    // take DP/AD from the VCF instead of the pileup
	VCFType     string  // one of VCFTypes, only used with UseVCFInfo
}

// DefaultOptions are the usual amplicon pipeline cutoffs.
func DefaultOptions() Options {
	return Options{MinCoverage: 4, MinAltFreq: 0.5, MinQual: 100}
}

// Result summarizes one consensus run.
type Result struct {
	RefName   string
	RefLen    int
	Applied   int // variants written to the pass VCF and applied
	Ignored   int // variants dropped by a filter
	Fragments int
}

type variantClass int

const (
	classSub variantClass = iota
	classIns
	classDel
)

func classify(ref, alt string) variantClass {
	switch delta := len(alt) - len(ref); {
	case delta > 0:
		return classIns
	case delta < 0:
		return classDel
	default:
		return classSub
	}
}

// Run builds the consensus for sample prefix. It reads prefix+".bam.depth",
// prefix+".vcf" and (unless opts.UseVCFInfo) prefix+".bam.mpileup", and
// writes prefix+".vcfcons.vcf", prefix+".vcfcons.fasta" and
// prefix+".vcfcons.frag.fasta". The consensus record is named newID.
func Run(refFasta, prefix, newID string, opts Options) (*Result, error) {
	refName, refseq, err := readReference(refFasta)
	if err != nil {
		return nil, err
	}

	depths, err := depth.Read(prefix + ".bam.depth")
	if err != nil {
		return nil, err
	}

	var pile map[int]*pileup.Record
	if !opts.UseVCFInfo {
		pile, err = pileup.ReadAll(prefix + ".bam.mpileup")
		if err != nil {
			return nil, err
		}
	}

	cons := NewConsensus(refseq)
	cons.MaskLowCoverage(depths, opts.MinCoverage)

	res := &Result{RefName: refName, RefLen: len(refseq)}
	if err := applyVariants(prefix, cons, pile, opts, res); err != nil {
		return nil, err
	}

	if err := writeFasta(prefix+".vcfcons.fasta", newID, cons.Sequence(0, cons.Len())); err != nil {
		return nil, err
	}

	frags := cons.Fragments()
	res.Fragments = len(frags)
	if err := writeFragFasta(prefix+".vcfcons.frag.fasta", newID, frags); err != nil {
		return nil, err
	}
	return res, nil
}

func readReference(path string) (string, []byte, error) {
	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open reference %s: %w", path, err)
	}
	defer reader.Close()

	record, err := reader.Read()
	if err != nil {
		return "", nil, fmt.Errorf("read reference %s: %w", path, err)
	}
	seq := make([]byte, len(record.Seq.Seq))
	copy(seq, record.Seq.Seq)
	return string(record.Name), seq, nil
}

// applyVariants streams prefix+".vcf", writes passing variants to
// prefix+".vcfcons.vcf" and edits them into cons.
func applyVariants(prefix string, cons *Consensus, pile map[int]*pileup.Record, opts Options, res *Result) error {
	in, err := os.Open(prefix + ".vcf")
	if err != nil {
		return fmt.Errorf("open VCF: %w", err)
	}
	defer in.Close()

	rdr, err := vcfgo.NewReader(in, false)
	if err != nil {
		return fmt.Errorf("parse VCF %s.vcf: %w", prefix, err)
	}

	out, err := os.Create(prefix + ".vcfcons.vcf")
	if err != nil {
		return err
	}
	defer out.Close()

	wtr, err := vcfgo.NewWriter(out, rdr.Header)
	if err != nil {
		return fmt.Errorf("write VCF header: %w", err)
	}

	for {
		v := rdr.Read()
		if v == nil {
			break
		}
		if len(v.Alt()) > 1 {
			log.Printf("WARNING: more than 1 alt type for %s! Using just the first alt for now.", prefix)
		}

		ref, alt := v.Ref(), v.Alt()[0]
		class := classify(ref, alt)
		pos0 := int(v.Pos) - 1

		totalCov, altCount, err := variantSupport(v, pile, opts, prefix)
		if err != nil {
			return err
		}

		switch {
		case totalCov < opts.MinCoverage || totalCov == 0:
			log.Printf("INFO: For %s: Ignore variant %d:%s->%s because total cov is %d.", prefix, v.Pos, ref, alt, totalCov)
			res.Ignored++
			continue
		case float64(altCount)/float64(totalCov) < opts.MinAltFreq:
			log.Printf("INFO: For %s: Ignore variant %d:%s->%s because alt freq is %.4f.", prefix, v.Pos, ref, alt, float64(altCount)/float64(totalCov))
			res.Ignored++
			continue
		case v.Quality > 0 && float64(v.Quality) < opts.MinQual:
			log.Printf("INFO: For %s: Ignore variant %d:%s->%s because qual is %.1f.", prefix, v.Pos, ref, alt, v.Quality)
			res.Ignored++
			continue
		}
		if v.Quality == 0 {
			log.Printf("WARNING: QUAL field is empty for %s:%d. Ignoring QUAL filter.", prefix, v.Pos)
		}

		wtr.WriteVariant(v)
		res.Applied++
		switch class {
		case classSub:
			cons.ApplySub(pos0, alt)
		case classIns:
			cons.ApplyIns(pos0, alt)
		case classDel:
			cons.ApplyDel(pos0, len(ref)-len(alt))
		}
	}
	return rdr.Error()
}

// variantSupport determines total coverage and ALT-supporting read count,
// either from the pileup observations or from the VCF's own DP/AD fields.
func variantSupport(v *vcfgo.Variant, pile map[int]*pileup.Record, opts Options, prefix string) (totalCov, altCount int, err error) {
	ref, alt := v.Ref(), v.Alt()[0]
	name := fmt.Sprintf("%s:%d", prefix, v.Pos)

	if !opts.UseVCFInfo {
		mrec, ok := pile[int(v.Pos)-1]
		if !ok {
			return 0, 0, fmt.Errorf("no pileup record at position %d", v.Pos)
		}
		switch classify(ref, alt) {
		case classSub:
			// consecutive subs share one record, use the first base
			return mrec.Cov, mrec.Base(string(alt[0])), nil
		case classIns:
			key := fmt.Sprintf("+%d%s", len(alt)-len(ref), alt[1:])
			return mrec.Cov, mrec.Counts[strings.ToUpper(key)] + mrec.Counts[strings.ToLower(key)], nil
		default:
			key := fmt.Sprintf("%d%s", len(alt)-len(ref), ref[1:])
			return mrec.Cov, mrec.Counts[strings.ToUpper(key)] + mrec.Counts[strings.ToLower(key)], nil
		}
	}

	if opts.VCFType != VCFTypeBCFTools && len(v.Samples) == 0 {
		return 0, 0, fmt.Errorf("%s: VCF record has no sample columns", name)
	}

	switch opts.VCFType {
	case VCFTypeBCFTools:
		// DP4 is ref-fwd, ref-rev, alt-fwd, alt-rev
		dp, e := v.Info().Get("DP")
		if e != nil {
			return 0, 0, fmt.Errorf("%s: no INFO/DP: %w", name, e)
		}
		dp4, e := v.Info().Get("DP4")
		if e != nil {
			return 0, 0, fmt.Errorf("%s: no INFO/DP4: %w", name, e)
		}
		counts := asInts(dp4)
		if len(counts) != 4 {
			return 0, 0, fmt.Errorf("%s: INFO/DP4 has %d values", name, len(counts))
		}
		return asInt(dp), counts[2] + counts[3], nil
	case VCFTypePBAA:
		sample := v.Samples[0]
		return sample.DP, altCountPBAA(v, sample, name), nil
	case VCFTypeCLC:
		sample := v.Samples[0]
		return sample.DP, altCountField(v, sample, "CLCAD2", len(v.Alt())+1, name), nil
	default:
		sample := v.Samples[0]
		return sample.DP, altCountField(v, sample, "AD", len(v.Alt())+1, name), nil
	}
}

// genotypeInts extracts an integer genotype field like AD or CLCAD2. The
// typed accessor only understands fields whose declared Number matches the
// delivered arity; fields declared Number=. arrive as the raw
// comma-joined string, so fall back to splitting that.
func genotypeInts(v *vcfgo.Variant, sample *vcfgo.SampleGenotype, field string) ([]int, bool) {
	raw, err := v.GetGenotypeField(sample, field, -1)
	if err == nil {
		return asInts(raw), true
	}
	s, ok := sample.Fields[field]
	if !ok || s == "" || s == "." {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// altCountField returns AD-style allele depth for ALT0, falling back to the
// sample DP when the genotype/count arity does not line up.
func altCountField(v *vcfgo.Variant, sample *vcfgo.SampleGenotype, field string, numGT int, name string) int {
	counts, ok := genotypeInts(v, sample, field)
	if !ok || numGT != len(counts) {
		log.Printf("ERROR: %s does not have the matching number of genotypes and counts!", name)
		return sample.DP
	}
	return counts[1]
}

// altCountPBAA handles pbaa-converted VCFs, where AD arity follows the
// genotype calls. ALT support is the summed depth of genotype-1 alleles.
func altCountPBAA(v *vcfgo.Variant, sample *vcfgo.SampleGenotype, name string) int {
	counts, ok := genotypeInts(v, sample, "AD")
	if !ok {
		log.Printf("ERROR: %s does not have the matching number of genotypes and counts!", name)
		return sample.DP
	}
	if len(sample.GT) == 1 {
		if len(counts) != 1 {
			log.Printf("ERROR: %s does not have the matching number of genotypes and counts!", name)
			return sample.DP
		}
		return counts[0]
	}
	if len(counts) != len(sample.GT) {
		log.Printf("ERROR: %s does not have the matching number of genotypes and counts!", name)
		return sample.DP
	}
	altCount := 0
	for i, gt := range sample.GT {
		if gt == 1 {
			altCount += counts[i]
		}
	}
	return altCount
}

func asInt(v interface{}) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case float32:
		return int(x)
	}
	return 0
}

func asInts(v interface{}) []int {
	switch x := v.(type) {
	case []int:
		return x
	case []int64:
		out := make([]int, len(x))
		for i, n := range x {
			out[i] = int(n)
		}
		return out
	case []interface{}:
		out := make([]int, len(x))
		for i, n := range x {
			out[i] = asInt(n)
		}
		return out
	case nil:
		return nil
	default:
		return []int{asInt(v)}
	}
}

func writeFasta(path, id, seq string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := fasta.NewWriter(f, 60)
	s := linear.NewSeq(id, alphabet.BytesToLetters([]byte(seq)), alphabet.DNA)
	_, err = w.Write(s)
	return err
}

func writeFragFasta(path, id string, frags []Fragment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := fasta.NewWriter(f, 60)
	for _, frag := range frags {
		name := fmt.Sprintf("%s_frag%d", id, frag.Start0+1)
		s := linear.NewSeq(name, alphabet.BytesToLetters([]byte(frag.Seq)), alphabet.DNA)
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// ResolveID picks the consensus record name. The rename file holds GISAID
// style IDs like hCoV-19/USA/IA-CDC-LC0005111/2021; a line whose CDC local
// ID suffix matches prefix wins. Without a match the name falls back to
// prefix+"_VCFconsensus".
func ResolveID(renameFile, prefix string) (string, error) {
	newID := prefix + "_VCFconsensus"
	if renameFile == "" {
		return newID, nil
	}
	f, err := xopen.Ropen(renameFile)
	if err != nil {
		return "", fmt.Errorf("open rename file %s: %w", renameFile, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "/")
		if len(parts) < 2 {
			continue
		}
		local := parts[len(parts)-2]
		dashed := strings.Split(local, "-")
		if dashed[len(dashed)-1] == prefix {
			newID = line
		}
	}
	return newID, nil
}
