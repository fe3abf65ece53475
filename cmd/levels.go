package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/regionmap/internal/geography"
)

var levelsCmd = &cobra.Command{
	Use:   "levels <file>",
	Short: "Show the geography levels present in a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := readTable(args[0])
		if err != nil {
			return err
		}
		det, err := tbl.Detect()
		if err != nil {
			return err
		}
		printDetection(os.Stdout, tbl.Columns(), det)
		return nil
	},
}

func printDetection(out io.Writer, columns []string, det geography.Detection) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEVEL\tROWS")
	_, _ = fmt.Fprintln(w, "-----\t----")
	for _, level := range det.Levels {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", level, det.Counts[level])
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nColumns: %d\n", len(columns))
	for _, c := range columns {
		_, _ = fmt.Fprintf(out, "  %s\n", c)
	}
	if det.NationalRollup {
		_, _ = fmt.Fprintln(out, "\nNational rollup row (England) present: ITL1 maps merge English regions.")
	}
	if det.Ambiguous() {
		_, _ = fmt.Fprintln(out, "\nSeveral levels present: pass --level to render.")
	}
}

func init() {
	rootCmd.AddCommand(levelsCmd)
}
