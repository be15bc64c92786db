package main

import (
	"os"

	"github.com/ldbc/driver/cmd/ldbc-driver/cmd"
	"github.com/ldbc/driver/internal/common"
)

func main() {
	common.ConfigureLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
