package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/amaos/internal/store"
	"github.com/me/amaos/pkg/model"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		journal string
		limit   int
		typ     string
		task    int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the task event journal, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if journal == "" {
				journal = cfg.Journal.Path
			}
			if journal == "" {
				return errors.New("no journal configured (set journal.path or pass --journal)")
			}

			st, err := store.NewSQLiteStore(journal, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate journal: %w", err)
			}

			events, total, err := st.ListEvents(cmd.Context(), store.ListOptions{
				Limit:  limit,
				Type:   model.EventType(typ),
				TaskID: task,
			})
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events.")
				return nil
			}

			const row = "%-16s  %-10s  %-22s  %-7s  %-8s  %-8s  %s\n"
			fmt.Fprintf(out, row, "WHEN", "TYPE", "TASK", "KIND", "RAM", "STORAGE", "DETAIL")
			fmt.Fprintf(out, row, "----", "----", "----", "----", "---", "-------", "------")
			for _, ev := range events {
				fmt.Fprintf(out, row,
					humanize.Time(ev.CreatedAt), ev.Type, taskColumn(ev), kindColumn(ev.Kind),
					mib(ev.RAM), mib(ev.Storage), ev.Detail)
			}

			if total > len(events) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(events), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&journal, "journal", "", "Journal database path (default: journal.path from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	cmd.Flags().StringVar(&typ, "type", "", "Only events of this type (admitted, rejected, terminated, rotated, released, configured)")
	cmd.Flags().IntVar(&task, "task", 0, "Only events for this PID or TID")

	return cmd
}

func taskColumn(ev model.Event) string {
	switch {
	case ev.TaskID != 0:
		return fmt.Sprintf("%d %s", ev.TaskID, ev.TaskName)
	case ev.TaskName != "":
		return ev.TaskName
	}
	return "-"
}

func kindColumn(k model.Kind) string {
	if k == "" {
		return "-"
	}
	return k.String()
}

func mib(n int) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n) << 20)
}
