package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmehdipour/vm-relay/internal/model"
	"github.com/jmehdipour/vm-relay/internal/repository"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyMessage string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deliveries from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadJournalConfig()
		if err != nil {
			return err
		}

		dbx, err := openJournal(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		repo := repository.NewDeliveriesRepository(dbx)

		var rows []model.Delivery
		if historyMessage != "" {
			rows, err = repo.ListByMessage(cmd.Context(), historyMessage)
		} else {
			rows, err = repo.ListRecent(cmd.Context(), historyLimit)
		}
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tMESSAGE\tSTATUS\tCALLER\tNUMBER\tRECEIVED\tERROR")
		for _, d := range rows {
			received := "-"
			if d.ReceivedAt != nil {
				received = d.ReceivedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				d.CreatedAt.Local().Format(time.DateTime),
				d.MessageID, d.Status, dash(d.CallerName), dash(d.CallerNumber), received, dash(d.Error))
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of rows to show")
	historyCmd.Flags().StringVar(&historyMessage, "message", "", "show every attempt for one provider message id")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
