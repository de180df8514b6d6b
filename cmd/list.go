package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored observations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.ListObservations(ctx)
		if err != nil {
			return eris.Wrap(err, "list observations")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "IDENTIFIER\tTIMESTAMP\tOBSERVER\tPLACE\tPHOTOMETER\tROWS")
		for _, s := range summaries {
			ts := ""
			if s.Timestamp != nil {
				ts = s.Timestamp.Format("2006-01-02 15:04:05")
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				s.Identifier, ts, s.Observer, s.Place, s.Photometer, s.Rows)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
