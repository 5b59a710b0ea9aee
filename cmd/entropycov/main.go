// Command entropycov prints per-base coverage at known high-entropy
// SARS-CoV-2 genome positions from a `bedtools genomecov -d` output file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jrharting/CoSA/depth"
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: entropycov <sample.cov>")
		flag.Usage()
		os.Exit(1)
	}

	if err := depth.ReportFile(os.Stdout, flag.Arg(0), depth.HighEntropyPositions); err != nil {
		log.Fatalf("Error reading coverage: %v", err)
	}
}
