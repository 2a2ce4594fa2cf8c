package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sensingclues/harmonie-grib/internal/adapter/grib1"
	"github.com/sensingclues/harmonie-grib/internal/domain"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "List a forecast file's records and check the product rules against it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := grib1.NewCodec().Open(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tPARAM\tLEVEL TYPE\tLEVEL\tHOUR\tGRID")
		for i, r := range records {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%dx%d\n", i, r.ParameterID, r.LevelType, r.Level, r.ForecastHour, r.Grid.Ni, r.Grid.Nj)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		var missing int
		fmt.Fprintln(out)
		for _, rule := range domain.ProductRules() {
			if _, err := rule.Apply(records); err != nil {
				missing++
				fmt.Fprintf(out, "FAIL %s: %v\n", rule.Name, err)
				continue
			}
			fmt.Fprintf(out, "ok   %s\n", rule.Name)
		}
		if missing > 0 {
			return fmt.Errorf("%s: %d of %d rules cannot be applied", args[0], missing, len(domain.ProductRules()))
		}
		return nil
	},
}
