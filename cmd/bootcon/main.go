package main

import (
	"github.com/robotalks/iob-boot/pkg/cli/sh"
	"github.com/robotalks/iob-boot/pkg/console"
)

//go-build: CGO_ENABLED=0

func init() {
	console.SetupFlags()
}

func main() {
	sh.Main()
}
