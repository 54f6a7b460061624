// Package main provides the lenet CLI: batch digit classification with the
// fixed two-conv network, plus synthetic fixture generation.
//
// Usage:
//
//	lenet -model model.safetensors -testdata testdata.safetensors [flags]
//	lenet -model model.safetensors -idx-images t10k-images-idx3-ubyte.gz -idx-labels t10k-labels-idx1-ubyte.gz
//	lenet gen -out DIR [-batch-size N] [-seed S]
//	lenet version
package main

import (
	"fmt"
	"io"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches to a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Fprintf(stdout, "lenet %s\n", version)
			return 0
		case "gen":
			return runGen(args[1:], stdout, stderr)
		}
	}
	return runInfer(args, stdout, stderr)
}
