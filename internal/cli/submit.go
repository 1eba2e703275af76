package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var file, solution string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <exercise_id>",
		Short: "Submit a solution to an exercise",
		Long: "Submit a solution as the logged-in student. Automatically graded " +
			"exercises start grading at once; --wait blocks until the grade is in.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exerciseID := args[0]
			text, err := readSolution(file, solution)
			if err != nil {
				return err
			}

			resp, err := client.Post("/api/v1/exercises/"+exerciseID+"/submissions/", map[string]any{
				"solution": text,
			})
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			var sub model.Submission
			if err := decode(resp, &sub); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submission created: %s (#%d, status: %s)\n", sub.ID, sub.Number, sub.AutoGradeStatus)
			if !wait || sub.AutoGradeStatus != model.AutoGradeInProgress {
				return nil
			}

			progress(cmd.ErrOrStderr(), "Waiting for automatic grading...")
			resp, err = client.Get("/api/v1/exercises/" + exerciseID + "/submissions/latest/await")
			if err != nil {
				return fmt.Errorf("await grading: %w", err)
			}
			if resp.Empty() {
				return nil
			}
			var ls model.LatestSubmission
			if err := decode(resp, &ls); err != nil {
				return err
			}
			printLatest(out, &ls)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the solution from a file (- for stdin)")
	cmd.Flags().StringVar(&solution, "solution", "", "Solution text")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for automatic grading to finish")
	return cmd
}

func newTryCmd() *cobra.Command {
	var file, solution string

	cmd := &cobra.Command{
		Use:   "try <exercise_id>",
		Short: "Grade a solution anonymously",
		Long:  "Grade a solution without storing it as a submission. The exercise must allow anonymous grading.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSolution(file, solution)
			if err != nil {
				return err
			}

			progress(cmd.ErrOrStderr(), "Grading...")
			resp, err := client.Post("/api/v1/exercises/"+args[0]+"/anonymous/autoassess", map[string]any{
				"solution": text,
			})
			if err != nil {
				return fmt.Errorf("grade: %w", err)
			}
			var res model.GradeResult
			if err := decode(resp, &res); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Grade: %d\n", res.Grade)
			if res.Feedback != nil {
				fmt.Fprintf(out, "Feedback: %s\n", *res.Feedback)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the solution from a file (- for stdin)")
	cmd.Flags().StringVar(&solution, "solution", "", "Solution text")
	return cmd
}
