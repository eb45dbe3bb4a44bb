package main

import "github.com/graniet/kheish/cmd"

func main() {
	cmd.Execute()
}
