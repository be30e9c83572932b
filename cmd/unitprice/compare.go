package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"unitprice/internal/unitprice"
)

var compareCmd = &cobra.Command{
	Use:   "compare ITEM...",
	Short: "Rank items by price per unit",
	Long: `Rank items by price per unit.

In amount mode each ITEM is PRICE:QUANTITY[:COUNT], e.g. 12.99:500 or 10:2*250:3.
In labeled mode (--labeled) each ITEM is PRICE:COUNT[:LABEL] and every item
is recorded to history as it is added.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		labeled, _ := cmd.Flags().GetBool("labeled")
		record, _ := cmd.Flags().GetBool("record")

		mode := ""
		if labeled {
			mode = string(unitprice.ModeLabeled)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Compare(cmd.Context(), mode, args, record)
		if err != nil {
			return err
		}

		for _, rej := range res.Rejected {
			fmt.Printf("skipped: %s\n", describe(rej))
		}
		for _, se := range res.StorageErrors {
			fmt.Printf("not saved: %s\n", describe(se))
		}

		if len(res.Items) == 0 {
			fmt.Println("No valid items.")
			return nil
		}

		best := make(map[int64]bool, len(res.Best))
		for _, it := range res.Best {
			best[it.ID] = true
		}
		for i, it := range res.Items {
			marker := " "
			if best[it.ID] {
				marker = "*"
			}
			fmt.Printf("%s %2d  %-12s  %10s / %-8s  = %s per unit\n",
				marker, i+1, it.Label, num(it.Price), num(it.TotalAmount), num(it.UnitPrice))
		}
		if res.Record != nil {
			fmt.Printf("Recorded as %s\n", res.Record.ID)
		}
		return nil
	},
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	compareCmd.Flags().BoolP("labeled", "l", false, "Labeled mode: PRICE:COUNT[:LABEL], per-unit amount fixed at 1")
	compareCmd.Flags().BoolP("record", "r", false, "Record the comparison to history (amount mode)")
}
