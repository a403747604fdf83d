package main

import "exemplar/internal/cli"

func main() {
	cli.Execute()
}
