package main

import (
	"fmt"
	"os"

	"vidscribe/internal/services"
)

const exitCancelled = 130

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if services.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(exitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
