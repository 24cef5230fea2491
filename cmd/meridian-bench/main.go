// Command meridian-bench drives a scripted key-value (and, optionally,
// query-service) workload against a cluster for manual smoke-testing
// and rough latency characterization during development.
package main

import (
	"fmt"
	"os"

	"github.com/meridiandb/meridian-go/cmd/meridian-bench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
