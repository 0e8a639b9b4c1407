// Package main provides the entry point for the chkrelease audit CLI.
package main

import (
	"os"
)

func main() {
	os.Exit(Execute())
}
