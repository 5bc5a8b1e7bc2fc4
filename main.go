package main

import (
	"fmt"
	"os"

	"guardian/cmd"
)

func main() {
	if err := cmd.Execute(os.Args[1:]); err != nil {
		code := cmd.ExitCode(err)
		if code != 2 && !cmd.Reported(err) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(code)
	}
}
