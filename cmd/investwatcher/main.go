package main

import (
	"github.com/joho/godotenv"

	"invest-watcher/internal/cli"
)

func main() {
	// Optional .env for bot tokens on dev machines; ignored when absent.
	_ = godotenv.Load()

	cli.Execute()
}
