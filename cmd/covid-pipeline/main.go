package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/cli"
)

func main() {
	_ = godotenv.Load()
	os.Exit(int(cli.Run()))
}
