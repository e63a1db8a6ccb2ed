package main

import (
	"os"

	"github.com/fatih/color"

	"rewear/internal/rewear"
)

func main() {
	if err := rewear.Run(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		_, _ = errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
