package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "icebergcat",
	Short: "icebergcat is a REST Catalog server for Iceberg-format tables.",
}

func Execute() error {
	return rootCmd.Execute()
}
