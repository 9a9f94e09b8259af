package main

import (
	"os"

	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
