package main

import "github.com/oshokin/update-gateway/cmd/update-gateway/cmd"

func main() {
	cmd.Execute()
}
