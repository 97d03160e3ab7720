package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/jon4hz/chartwise/cmd"
)

var version = "dev"

func main() {
	if err := fang.Execute(context.Background(), cmd.Root(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}
