package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/me/amaos/pkg/model"
	"github.com/spf13/cobra"
)

// defaultServer returns the default server URL, checking AMAOS_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("AMAOS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List the ready queue of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/tasks")
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			var data struct {
				Tasks    []model.Task `json:"tasks"`
				Count    int          `json:"count"`
				Capacity int          `json:"capacity"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			for _, t := range data.Tasks {
				fmt.Fprintln(out, t.Label())
			}
			fmt.Fprintf(out, "\n(%d of %d slots used)\n", data.Count, data.Capacity)
			return nil
		},
	}
}

func newLaunchCmd() *cobra.Command {
	var thread bool

	cmd := &cobra.Command{
		Use:   "launch <name>",
		Short: "Admit a task on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := model.KindProcess
			if thread {
				kind = model.KindThread
			}
			resp, err := client.Post(cmd.Context(), "/api/v1/tasks", model.LaunchRequest{Name: args[0], Kind: kind.String()})
			if err != nil {
				return fmt.Errorf("launch %s: %w", args[0], err)
			}

			var t model.Task
			if err := json.Unmarshal(resp.Data, &t); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", t.Label())
			return nil
		},
	}

	cmd.Flags().BoolVar(&thread, "thread", false, "Spawn a thread-like task instead of a process")

	return cmd
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Terminate a process-like task on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			resp, err := client.Delete(cmd.Context(), "/api/v1/tasks/"+strconv.Itoa(pid))
			if err != nil {
				return fmt.Errorf("terminate %d: %w", pid, err)
			}

			var t model.Task
			if err := json.Unmarshal(resp.Data, &t); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Terminated %s\n", t.Label())
			return nil
		},
	}
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "Show the resource pool of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/resources")
			if err != nil {
				return fmt.Errorf("get resources: %w", err)
			}

			var r model.Resources
			if err := json.Unmarshal(resp.Data, &r); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RAM:     %s used, %s free of %s\n", mib(r.UsedRAM()), mib(r.AvailableRAM), mib(r.TotalRAM))
			fmt.Fprintf(out, "Storage: %s used, %s free of %s\n", mib(r.UsedStorage()), mib(r.AvailableStorage), mib(r.TotalStorage))
			fmt.Fprintf(out, "Cores:   %d\n", r.Cores)
			return nil
		},
	}
}
