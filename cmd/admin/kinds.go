package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cvinsight/internal/analysis"
	"cvinsight/internal/prompts"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List analysis kinds and providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tTITLE\tTEMPLATE CHARS")
		for _, k := range analysis.Kinds() {
			tmpl, err := prompts.Template(k)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", k, k.Title(), len([]rune(tmpl)))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "PROVIDER\tSERVICE\t")
		for _, p := range analysis.Providers() {
			fmt.Fprintf(w, "%s\t%s\t\n", p, p.Service())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
