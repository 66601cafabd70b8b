package main

import "github.com/richmond2010/DoRaeMi/cmd"

func main() {
	cmd.Execute()
}
