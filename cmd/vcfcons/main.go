// Command vcfcons builds a consensus sequence for a sample from its
// reference alignment outputs. For prefix P it expects P.bam.depth, P.vcf
// and (unless -use_vcf_info is set) P.bam.mpileup next to each other, and
// writes P.vcfcons.fasta, P.vcfcons.frag.fasta and P.vcfcons.vcf.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/jrharting/CoSA/vcfcons"
)

var (
	renameFile  = flag.String("s", "", "sequence ID rename file (optional)")
	minCoverage = flag.Int("c", 4, "minimum base coverage to call a base")
	minAltFreq  = flag.Float64("f", 0.5, "minimum ALT frequency to apply a variant")
	minQual     = flag.Float64("q", 100, "minimum QUAL cutoff")
	useVCFInfo  = flag.Bool("use_vcf_info", false, "use VCF DP/AD info instead of the pileup")
	vcfType     = flag.String("vcf_type", "", "VCF flavor: pbaa, deepvariant, CLC or bcftools (only with -use_vcf_info)")
)

func main() {
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Println("Usage: vcfcons [options] <ref.fasta> <sample prefix>")
		flag.Usage()
		os.Exit(1)
	}
	refFasta, prefix := flag.Arg(0), flag.Arg(1)

	if *minAltFreq <= 0 || *minAltFreq >= 1 {
		log.Fatalf("-f must be a fraction between (0,1). Got %v instead. Abort!", *minAltFreq)
	}
	if *vcfType != "" && !validVCFType(*vcfType) {
		log.Fatalf("-vcf_type must be one of %v. Got %q instead. Abort!", vcfcons.VCFTypes, *vcfType)
	}

	required := []string{prefix + ".bam.depth", prefix + ".vcf"}
	if !*useVCFInfo {
		required = append(required, prefix+".bam.mpileup")
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			log.Fatalf("Cannot find input file %s. Abort!", path)
		}
	}

	newID, err := vcfcons.ResolveID(*renameFile, prefix)
	if err != nil {
		log.Fatalf("Error reading rename file: %v", err)
	}

	opts := vcfcons.Options{
		MinCoverage: *minCoverage,
		MinAltFreq:  *minAltFreq,
		MinQual:     *minQual,
		UseVCFInfo:  *useVCFInfo,
		VCFType:     *vcfType,
	}
	res, err := vcfcons.Run(refFasta, prefix, newID, opts)
	if err != nil {
		log.Fatalf("Error building consensus: %v", err)
	}

	color.HiGreen("Consensus written to %s.vcfcons.fasta (%s, %d bp)", prefix, res.RefName, res.RefLen)
	fmt.Printf("Variants applied: %d, ignored: %d, fragments: %d\n", res.Applied, res.Ignored, res.Fragments)
}

func validVCFType(t string) bool {
	for _, v := range vcfcons.VCFTypes {
		if t == v {
			return true
		}
	}
	return false
}
