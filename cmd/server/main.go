// cmd/server/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "wildlife-licensing",
		Usage: "Licensing and compliance workflow service",
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			seedCommand,
			tokenCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
