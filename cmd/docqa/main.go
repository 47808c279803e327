// Command docqa answers questions about a document corpus using retrieval-augmented generation.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
