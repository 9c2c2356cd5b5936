// Command ndpid is the flow classifier and exporter of spec.md §1.
package main

import (
	"os"

	"github.com/flowlens/ndpid-go/cmd/ndpid/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
