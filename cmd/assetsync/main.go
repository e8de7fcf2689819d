package main

import "github.com/cbout22/assetsync/internal/cli"

func main() {
	cli.Execute()
}
