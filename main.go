package main

import (
	"os"

	"github.com/llehouerou/mpsd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
