package main

import "github.com/jake-scott/ewelink-switches/cmd"

func main() {
	cmd.Execute()
}
