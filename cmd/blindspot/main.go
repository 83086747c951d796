package main

import (
	"os"

	"horse.fit/blindspot/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
