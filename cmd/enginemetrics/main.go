// Command enginemetrics runs the engineering-metrics platform: a
// "collect" subcommand that fans out across configured teams and writes
// a cache artifact, and a "serve" subcommand that runs the dashboard's
// HTTP API against the cache.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
