package main

import "github.com/searchktools/scratch-server/app"

func main() {
	app.Main()
}
