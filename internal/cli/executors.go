package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

func newExecutorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executors",
		Aliases: []string{"exec"},
		Short:   "Manage grading executors (admin)",
	}
	cmd.AddCommand(
		newExecutorsListCmd(),
		newExecutorsAddCmd(),
		newExecutorsDrainCmd(),
		newExecutorsRemoveCmd(),
		newExecutorsLinkCmd(),
	)
	return cmd
}

func newExecutorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List executors with their current load",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/executors/")
			if err != nil {
				return fmt.Errorf("list executors: %w", err)
			}
			var execs []model.Executor
			if err := decode(resp, &execs); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(execs) == 0 {
				fmt.Fprintln(out, "No executors registered.")
				return nil
			}
			fmt.Fprintf(out, "%-42s  %-16s  %-9s  %-5s  %s\n", "ID", "NAME", "LOAD", "DRAIN", "URL")
			fmt.Fprintf(out, "%-42s  %-16s  %-9s  %-5s  %s\n", "--", "----", "----", "-----", "---")
			for _, ex := range execs {
				fmt.Fprintf(out, "%-42s  %-16s  %-9s  %-5t  %s\n",
					ex.ID, ex.Name, fmt.Sprintf("%d/%d", ex.Load, ex.MaxLoad), ex.Drain, ex.BaseURL)
			}
			return nil
		},
	}
}

func newExecutorsAddCmd() *cobra.Command {
	var maxLoad int

	cmd := &cobra.Command{
		Use:   "add <name> <base_url>",
		Short: "Register an executor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/executors/", map[string]any{
				"name":     args[0],
				"base_url": args[1],
				"max_load": maxLoad,
			})
			if err != nil {
				return fmt.Errorf("add executor: %w", err)
			}
			var ex model.Executor
			if err := decode(resp, &ex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executor registered: %s\n", ex.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxLoad, "max-load", 4, "Concurrent grading calls the executor accepts")
	return cmd
}

func newExecutorsDrainCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "drain <executor_id>",
		Short: "Stop routing new grading calls to an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Put("/api/v1/executors/"+args[0]+"/drain", map[string]any{"drain": !undo})
			if err != nil {
				return fmt.Errorf("drain executor: %w", err)
			}
			var ex model.Executor
			if err := decode(resp, &ex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executor %s: drain=%t load=%d\n", ex.ID, ex.Drain, ex.Load)
			return nil
		},
	}

	cmd.Flags().BoolVar(&undo, "undo", false, "Resume routing to the executor")
	return cmd
}

func newExecutorsRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <executor_id>",
		Short: "Remove an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/executors/" + args[0]
			if force {
				path += "?force=true"
			}
			if _, err := client.Delete(path); err != nil {
				return fmt.Errorf("remove executor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executor %s removed.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove even while grading calls run")
	return cmd
}

func newExecutorsLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <auto_exercise_id> <executor_id>",
		Short: "Allow an executor to grade an auto exercise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Put("/api/v1/auto-exercises/"+args[0]+"/executors/"+args[1], nil); err != nil {
				return fmt.Errorf("link executor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executor %s linked to %s.\n", args[1], args[0])
			return nil
		},
	}
}
