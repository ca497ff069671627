package main

import "github.com/JxTIN21/Codebase/cmd"

func main() {
	cmd.Execute()
}
