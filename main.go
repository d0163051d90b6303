package main

import "github.com/bookfinder/apiserver/cmd"

func main() {
	cmd.Execute()
}
