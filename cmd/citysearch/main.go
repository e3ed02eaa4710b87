package main

import "github.com/couchcryptid/city-search/cmd/citysearch/command"

func main() {
	command.Execute()
}
