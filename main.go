package main

import "github.com/Yates-Labs/dramatis/cmd"

func main() {
	cmd.Execute()
}
