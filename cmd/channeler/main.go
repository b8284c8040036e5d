package main

import (
	"os"

	"github.com/lukeburns/channeler/cmd/channeler/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
