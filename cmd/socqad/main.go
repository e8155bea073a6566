package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vantagesec/socqa/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "socqad",
		Short: "SOC incident QA agent",
		Long: "socqad reviews closed SOC incidents against procedure and MITRE " +
			"ATT&CK knowledge and writes QA reports back to the monitoring system",
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.DaemonCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "daemon")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
