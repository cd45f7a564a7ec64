package main

import "github.com/dalgonaburger/stageboard/cmd"

func main() {
	cmd.Execute()
}
