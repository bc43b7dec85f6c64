// aab - command-line client and companion gateway for the autoantibody
// classification service.
package main

import (
	"os"

	"github.com/alchemab/aab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
