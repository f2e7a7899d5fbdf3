package main

import (
	"os"

	"cipherclients/cmd/cipherclients/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
