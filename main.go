package main

import "github.com/Yates-Labs/lore/cmd"

func main() {
	cmd.Execute()
}
