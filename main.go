package main

import "github.com/0w0mewo/localsendgs/cmd"

func main() {
	cmd.Execute()
}
