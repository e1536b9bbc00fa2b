package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	os.Exit(execute())
}
