package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recorded comparisons",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent comparisons, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.History(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing history: %s", describe(err))
		}
		if len(recs) == 0 {
			fmt.Println("No comparisons recorded.")
			return nil
		}

		for _, r := range recs {
			fmt.Printf("%s  %s  %d item(s)  best %s per unit (%s / %s)\n",
				r.ID,
				r.CreatedAt.Local().Format(time.DateTime),
				r.TotalItemCount,
				num(r.BestItem.UnitPrice),
				num(r.BestItem.Price),
				num(r.BestItem.TotalAmount),
			)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one recorded comparison",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteHistory(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting history: %s", describe(err))
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded comparison",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearHistory(cmd.Context()); err != nil {
			return fmt.Errorf("clearing history: %s", describe(err))
		}
		fmt.Println("History cleared.")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
