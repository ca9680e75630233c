// Command crawler is the corecrawl entrypoint. All flag parsing, config
// loading, and engine wiring live in internal/cli.
package main

import (
	cmd "github.com/rohmanhakim/corecrawl/internal/cli"
)

func main() {
	cmd.Execute()
}
