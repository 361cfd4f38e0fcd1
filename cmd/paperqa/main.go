// Command paperqa indexes a corpus of research papers and answers questions
// about it, from the CLI or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/paperqa-go/cmd/paperqa/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
