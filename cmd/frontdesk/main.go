package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "frontdesk",
	Short:         "AI receptionist with human escalation",
	Long:          "frontdesk answers customer questions from a local knowledge base and escalates to a human supervisor when unsure. Supervisor answers are refined and taught back to the knowledge base.",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(resolveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
