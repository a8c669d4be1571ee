package main

import "rymeta/cmd"

func main() {
	cmd.Execute()
}
