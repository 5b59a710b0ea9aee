// Command subsample reads a lima demultiplexing counts file and prints,
// for every barcode group, a shell pipeline that downsamples the group's
// BAM to roughly the target read count and converts it to FASTQ.
//
// With -exec the subsampling runs in-process instead of being printed.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/jrharting/CoSA/bamfq"
	"github.com/jrharting/CoSA/counts"
)

var (
	countsFile = flag.String("i", "output.lima.counts", "lima counts file")
	target     = flag.Int("n", 1000, "target read count per group")
	execMode   = flag.Bool("exec", false, "subsample the BAMs in-process instead of printing commands")
	seed       = flag.Int("seed", 1, "subsampling seed (only with -exec)")
)

func main() {
	flag.Parse()

	table, err := counts.Load(*countsFile)
	if err != nil {
		log.Fatalf("Error reading counts: %v", err)
	}

	if !*execMode {
		if err := counts.WriteCommands(os.Stdout, table, *target); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	totalKept := 0
	err = table.Each(func(key string, count int) error {
		frac, err := counts.Fraction(count, *target)
		if err != nil {
			return fmt.Errorf("group %s: %w", key, err)
		}
		res, err := bamfq.Subsample(key+".bam", key+".subsampled.fastq", frac, *seed)
		if err != nil {
			return err
		}
		color.HiGreen("%s: kept %d of %d reads (%d%%)", key, res.Kept, res.Total, counts.FractionCode(frac))
		totalKept += res.Kept
		return nil
	})
	if err != nil {
		log.Fatalf("Error subsampling: %v", err)
	}
	fmt.Printf("\nSubsampled %d groups, %d reads total\n", table.Len(), totalKept)
}
