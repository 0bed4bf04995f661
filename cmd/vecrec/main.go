// Command vecrec ingests feature vectors and prints recommendations from the
// exact and approximate indices side by side.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
