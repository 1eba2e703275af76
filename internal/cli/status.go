package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

func newLatestCmd() *cobra.Command {
	var await, autograded bool

	cmd := &cobra.Command{
		Use:   "latest <exercise_id>",
		Short: "Show your latest submission to an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if await && autograded {
				return fmt.Errorf("--await and --autograded are exclusive")
			}
			path := "/api/v1/exercises/" + args[0] + "/submissions/latest"
			switch {
			case await:
				path += "/await"
			case autograded:
				path += "/autograded"
			}
			if await || autograded {
				progress(cmd.ErrOrStderr(), "Waiting for automatic grading...")
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("get latest submission: %w", err)
			}
			if resp.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No submissions yet.")
				return nil
			}
			var ls model.LatestSubmission
			if err := decode(resp, &ls); err != nil {
				return err
			}
			printLatest(cmd.OutOrStdout(), &ls)
			return nil
		},
	}

	cmd.Flags().BoolVar(&await, "await", false, "Wait for grading in flight to finish")
	cmd.Flags().BoolVar(&autograded, "autograded", false, "Poll until automatic grading leaves IN_PROGRESS")
	return cmd
}

type submissionDetail struct {
	model.Submission
	AutoAssessment  *model.AutomaticAssessment `json:"auto_assessment"`
	TeacherActivity *model.TeacherActivity     `json:"teacher_activity"`
	InFlight        bool                       `json:"grading_in_flight"`
}

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <submission_id>",
		Short: "Show a submission with its assessments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/submissions/" + args[0])
			if err != nil {
				return fmt.Errorf("get submission: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				var v any
				if err := decode(resp, &v); err != nil {
					return err
				}
				data, _ := json.MarshalIndent(v, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}

			var d submissionDetail
			if err := decode(resp, &d); err != nil {
				return err
			}
			printSubmission(out, &d.Submission)
			if d.InFlight {
				fmt.Fprintln(out, "  Grading in flight")
			}
			if aa := d.AutoAssessment; aa != nil {
				fmt.Fprintf(out, "  Auto:      %d, %s (%s)\n", aa.Grade, optString(aa.Feedback), since(aa.CreatedAt))
			}
			if ta := d.TeacherActivity; ta != nil {
				fmt.Fprintf(out, "  Teacher:   %s, %s (by %s)\n", optInt(ta.Grade), optString(ta.Feedback), ta.TeacherID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON")
	return cmd
}
