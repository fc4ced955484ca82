package main

import "github.com/forPelevin/clipcast/internal/cli"

func main() {
	cli.Main()
}
