package main

import "github.com/mpapenbr/trackside/cmd"

func main() {
	cmd.Execute()
}
