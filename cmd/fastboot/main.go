// Command fastboot serves a built single-page application, pre-rendering
// its routes in an embedded JS engine, or renders a single route to stdout.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
