// Command reasoner plans the queries of a deductive program and explains
// the orderings it chose.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
