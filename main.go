package main

import "github.com/Norgate-AV/cpplab/cmd"

func main() {
	cmd.Execute()
}
