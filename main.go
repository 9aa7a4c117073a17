package main

import (
	"os"

	"github.com/blobsey/flashtoll/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
