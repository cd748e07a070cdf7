package main

import "github.com/chriserin/ftrp/cmd"

func main() {
	cmd.Execute()
}
