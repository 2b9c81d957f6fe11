package main

import "github.com/frahmantamala/dental-credit/cmd"

func main() {
	cmd.Execute()
}
