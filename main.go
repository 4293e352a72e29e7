package main

import "github.com/isometry/adis/internal/cli"

func main() {
	cli.Execute()
}
