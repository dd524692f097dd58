// Package main is the entry point for battle-loadtest.
package main

var (
	version = "dev"
)

func main() {
	Execute()
}
