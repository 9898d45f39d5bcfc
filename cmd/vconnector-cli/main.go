package main

import (
	"fmt"
	"os"
)

var AppVersion = "dev"

func main() {
	if err := run(os.Args[1:], newApp(os.Stdout)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
