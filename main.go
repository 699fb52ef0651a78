package main

import (
	"os"

	"github.com/overlab-kevin/clinical-trial-matcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
