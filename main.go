package main

import "pleno/audit/cmd"

func main() {
	cmd.Execute()
}
