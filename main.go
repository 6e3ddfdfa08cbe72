package main

import "github.com/spaghettifunk/prism/cmd"

func main() {
	cmd.Execute()
}
