// Package main is the entry point for the chords CLI.
//
// Usage:
//
//	chords [flags] <command> [args]
//
// Commands:
//
//	profile   - Chord sequence of a recording, one label per window
//	classify  - Chord of a single clip
//	generate  - Training table from a folder of labeled clips
//	train     - Train, evaluate and save a new model
//	models    - List, activate and show model artifacts
//	correct   - Save a relabeled window as a new training clip
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-chords/cmd/chords/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
