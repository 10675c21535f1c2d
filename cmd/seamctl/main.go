// Command seamctl runs and inspects the laser-processing control core.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "seamctl:", err)
		os.Exit(1)
	}
}
