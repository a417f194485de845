// Command mapviz drives the map visualization controller from the command
// line: it seeds experiment datasets, renders one configuration and
// replays a sequence of configuration changes against a rendering engine.
package main

import (
	"fmt"
	"os"
)

// BuildDate can be set at build time via ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
