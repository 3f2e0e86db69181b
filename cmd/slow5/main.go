package main

import (
	"log"
	"os"
)

/******************************************************************************

This file is the entry point for the slow5 command line utility. It is a
thin wrapper around application() so that run/application can be exercised
independently in tests, the same split bebop-poly uses for its own CLI.

Initial arg parsing and command definitions live in commands.go, built on
github.com/urfave/cli/v2. See:

https://github.com/urfave/cli/blob/main/docs/v2/manual.md

******************************************************************************/

func main() {
	run(os.Args)
}

func run(args []string) {
	app := application()
	if err := app.Run(args); err != nil {
		log.Fatal(err)
	}
}
