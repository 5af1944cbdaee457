package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hkuds/autopy/cmd/autopy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// The failure summary has already been printed.
		if !errors.Is(err, cmd.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}
