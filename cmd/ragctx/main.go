package main

import "ragctx/internal/cli"

func main() {
	cli.Execute()
}
