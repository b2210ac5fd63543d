package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "kanban-api",
		Short:        "Personal kanban board API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(initStorageCmd())
	root.AddCommand(issueTokenCmd())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
