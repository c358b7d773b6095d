package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "purchases",
	Short: "Course purchases microservice",
	Long:  "A course purchases microservice for checkout sessions, payment reconciliation and purchased-course queries.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
