package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

func newListCmd() *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list <exercise_id>",
		Short: "List your submissions to an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/exercises/" + args[0] + "/submissions/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}
			var subs []model.Submission
			if err := decode(resp, &subs); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions found.")
				return nil
			}

			fmt.Fprintf(out, "%-4s  %-42s  %-12s  %-6s  %s\n", "#", "ID", "STATUS", "GRADE", "SUBMITTED")
			fmt.Fprintf(out, "%-4s  %-42s  %-12s  %-6s  %s\n", "-", "--", "------", "-----", "---------")
			for _, sub := range subs {
				fmt.Fprintf(out, "%-4d  %-42s  %-12s  %-6s  %s\n",
					sub.Number, sub.ID, sub.AutoGradeStatus, optInt(sub.Grade), since(sub.CreatedAt))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(subs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by autograde status (NONE, IN_PROGRESS, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}
