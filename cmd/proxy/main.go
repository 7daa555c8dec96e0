// Command proxy runs the session-multiplexing Minecraft proxy: a durable
// upstream session per cached profile, and a downstream listener letting
// any number of game clients attach to and detach from those sessions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
