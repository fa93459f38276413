// Package cmd implements the adminauthctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	redisAddr string
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "adminauthctl",
	Short: "Sign in to the admin panel and manage its auth state",
	Long: `adminauthctl drives the admin-panel auth engine from a terminal.

The token and the signed auth projection are kept in client.state_path, so
a session survives between invocations. With the memory backend the server
state lives only as long as one command; use --redis to share it.

Examples:
  adminauthctl login admin@example.com
  adminauthctl check
  adminauthctl --redis localhost:6379 sessions 1
  adminauthctl serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./adminauth.yaml)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", `redis address; selects the redis backend ("mini" starts an embedded server)`)
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON output")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printTableHeader(w io.Writer, cols ...string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}
