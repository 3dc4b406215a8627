package main

import "github.com/tcynic/resonant-sub007/internal/cli"

func main() {
	cli.Execute()
}
