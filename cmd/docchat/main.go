package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "docchat — chat with your PDF documents",
		Long:  "docchat uploads PDF documents to a question-answering backend and holds a conversation about them.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDoctorCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docchat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
