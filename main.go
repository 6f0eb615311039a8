package main

import "github.com/mouse-blink/libpack/cmd"

func main() {
	cmd.Execute()
}
