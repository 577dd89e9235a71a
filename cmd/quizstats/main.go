package main

import "github.com/quizstats/quizstats/internal/cli"

func main() {
	cli.Execute()
}
