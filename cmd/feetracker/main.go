package main

import "fee-tracker/internal/cli"

func main() {
	cli.Execute()
}
