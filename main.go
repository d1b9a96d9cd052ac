package main

import "arbejdsret/internal/cli"

func main() {
	cli.Execute()
}
