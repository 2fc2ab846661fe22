package main

import "raidwatch/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
