package parameters

import (
	"flag"
	"fmt"
	"os"
)

var (
	// DryRun do not write to the database, log the points instead
	DryRun *bool
)

func init() {
	DryRun = flag.Bool("dry-run", false, "do not write to the database, log points at debug level")
}

// Usage prints the command line synopsis.
func Usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-dry-run] <config.yaml>\n", os.Args[0])
	flag.PrintDefaults()
}
