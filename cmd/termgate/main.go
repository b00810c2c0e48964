package main

import "github.com/termgate/termgate/internal/cmd"

func main() {
	cmd.Execute()
}
