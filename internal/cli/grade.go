package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

func newRetryCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "retry <submission_id>",
		Short: "Run automatic grading again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/submissions/" + args[0] + "/autoassess/retry"
			if wait {
				path += "?wait=true"
				progress(cmd.ErrOrStderr(), "Regrading...")
			}
			resp, err := client.Post(path, nil)
			if err != nil {
				return fmt.Errorf("retry: %w", err)
			}
			var sub model.Submission
			if err := decode(resp, &sub); err != nil {
				return err
			}
			printSubmission(cmd.OutOrStdout(), &sub)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the regrade to finish")
	return cmd
}

func newGradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grade <submission_id> <grade>",
		Short: "Record a teacher grade (0-100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			grade, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("grade must be an integer: %w", err)
			}
			resp, err := client.Post("/api/v1/submissions/"+args[0]+"/grade", map[string]any{"grade": grade})
			if err != nil {
				return fmt.Errorf("post grade: %w", err)
			}
			var a model.TeacherActivity
			if err := decode(resp, &a); err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), &a)
			return nil
		},
	}
}

func newFeedbackCmd() *cobra.Command {
	var activityID string

	cmd := &cobra.Command{
		Use:   "feedback <submission_id> <text>",
		Short: "Record teacher feedback, or edit it with --activity",
		Long: "Record teacher feedback. With --activity the feedback of that activity " +
			"is replaced; an empty text clears it.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, text := args[0], args[1]
			out := cmd.OutOrStdout()

			var (
				resp *apiResponse
				err  error
			)
			if activityID != "" {
				resp, err = client.Put("/api/v1/submissions/"+sid+"/activities/"+activityID+"/feedback",
					map[string]any{"feedback": text})
			} else {
				resp, err = client.Post("/api/v1/submissions/"+sid+"/feedback", map[string]any{"feedback": text})
			}
			if err != nil {
				return fmt.Errorf("feedback: %w", err)
			}
			if resp.Empty() {
				fmt.Fprintf(out, "Activity %s removed.\n", activityID)
				return nil
			}
			var a model.TeacherActivity
			if err := decode(resp, &a); err != nil {
				return err
			}
			printActivity(out, &a)
			return nil
		},
	}

	cmd.Flags().StringVar(&activityID, "activity", "", "Edit the feedback of this activity")
	return cmd
}

func newActivitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activities <submission_id>",
		Short: "List teacher activities on a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/submissions/" + args[0] + "/activities")
			if err != nil {
				return fmt.Errorf("list activities: %w", err)
			}
			var acts []model.TeacherActivity
			if err := decode(resp, &acts); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(acts) == 0 {
				fmt.Fprintln(out, "No teacher activity.")
				return nil
			}
			for i := range acts {
				printActivity(out, &acts[i])
			}
			return nil
		},
	}
}
