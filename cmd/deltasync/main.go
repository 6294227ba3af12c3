// Command deltasync collects owner documents and delivers new ones to the
// ingestion endpoint.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/deltasync/internal/adapters/driving/cli"
)

var version = "dev"

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(context.Background(), version); err != nil {
		os.Exit(1)
	}
}
