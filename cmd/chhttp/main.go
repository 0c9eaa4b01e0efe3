package main

import (
	"os"

	"github.com/chhttp/chhttp-sdk/go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
