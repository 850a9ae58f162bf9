package main

import "github.com/maroda/worldline/cmd"

func main() {
	cmd.Execute()
}
