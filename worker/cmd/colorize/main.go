package main

import (
	"github.com/joho/godotenv"

	"mangatint/worker/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
