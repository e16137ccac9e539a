package main

import (
	"os"

	"github.com/panyam/onesession/internal/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
