package main

import (
	"os"

	"github.com/eudat-b2safe/b2handle/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
