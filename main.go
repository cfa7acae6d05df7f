// The main package for the prospector executable.
package main

import (
	"github.com/outreachkit/prospector/cmd"
)

func main() {
	cmd.Execute()
}
