package main

import (
	"fmt"
	"os"

	"github.com/hamuko/beelzebub/cli"
)

func main() {
	err := cli.Root().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
