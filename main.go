package main

import "github.com/Norgate-AV/ghostbind/cmd"

func main() {
	cmd.Execute()
}
