// Command annotatectl drives the tagging backend from a terminal: browsing
// and editing sentences, ingesting text and administering accounts.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "annotatectl",
		Short: "Terminal client for the tagging backend",
		Long: `annotatectl talks to the tagging backend over its REST API.

It lists and edits annotated sentences, submits text for tagging and
manages user accounts. Sign in once with 'annotatectl login'; the
credential is kept in the user config directory.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("api", "", "Backend base URL (default $API_BASE_URL or the URL used at login)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log backend calls")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newSentencesCmd(),
		newEditCmd(),
		newIngestCmd(),
		newUsersCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "annotatectl version %s\n", version)
			return nil
		},
	}
}
