package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/autograde/pkg/model"
)

// exerciseFile is the YAML layout accepted by `exercise create -f`.
type exerciseFile struct {
	Title                      string   `yaml:"title"`
	GraderType                 string   `yaml:"grader_type"`
	AnonymousAutoassessEnabled bool     `yaml:"anonymous_autoassess_enabled"`
	GradingScript              string   `yaml:"grading_script"`
	ContainerImage             string   `yaml:"container_image"`
	MaxTimeSec                 int      `yaml:"max_time_sec"`
	MaxMemMB                   int      `yaml:"max_mem_mb"`
	Assets                     []string `yaml:"assets"` // paths, relative to the YAML file
	Executors                  []string `yaml:"executors"`
}

// request builds the create-exercise body. Asset paths are read from dir.
func (f *exerciseFile) request(dir string) (map[string]any, error) {
	req := map[string]any{
		"title":                        f.Title,
		"grader_type":                  f.GraderType,
		"anonymous_autoassess_enabled": f.AnonymousAutoassessEnabled,
	}
	if model.GraderType(f.GraderType) != model.GraderAuto {
		return req, nil
	}

	assets := make([]model.Asset, 0, len(f.Assets))
	for _, p := range f.Assets {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read asset: %w", err)
		}
		assets = append(assets, model.Asset{FileName: filepath.Base(p), FileContent: string(data)})
	}

	req["auto_exercise"] = map[string]any{
		"grading_script":  f.GradingScript,
		"container_image": f.ContainerImage,
		"max_time_sec":    lo.Ternary(f.MaxTimeSec > 0, f.MaxTimeSec, 60),
		"max_mem_mb":      lo.Ternary(f.MaxMemMB > 0, f.MaxMemMB, 256),
		"assets":          assets,
		"executor_ids":    lo.Uniq(f.Executors),
	}
	return req, nil
}

func newExerciseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exercise",
		Short: "Manage exercises",
	}
	cmd.AddCommand(newExerciseCreateCmd(), newExerciseGetCmd(), newExerciseGraderCmd(), newExerciseAnonymousCmd())
	return cmd
}

func newExerciseCreateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create -f exercise.yaml",
		Short: "Create an exercise from a YAML description",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			var (
				data []byte
				err  error
				dir  = filepath.Dir(file)
			)
			if file == "-" {
				data, err = io.ReadAll(os.Stdin)
				dir = "."
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read exercise file: %w", err)
			}

			var ef exerciseFile
			if err := yaml.Unmarshal(data, &ef); err != nil {
				return fmt.Errorf("parse exercise file: %w", err)
			}
			req, err := ef.request(dir)
			if err != nil {
				return err
			}
			logger.Debug("creating exercise", "title", ef.Title, "grader_type", ef.GraderType)

			resp, err := client.Post("/api/v1/exercises/", req)
			if err != nil {
				return fmt.Errorf("create exercise: %w", err)
			}
			var ex model.Exercise
			if err := decode(resp, &ex); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exercise created: %s (%s)\n", ex.ID, ex.GraderType)
			if ex.AutoExerciseID != "" {
				fmt.Fprintf(out, "  Auto exercise: %s\n", ex.AutoExerciseID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Exercise YAML file (- for stdin)")
	return cmd
}

func newExerciseGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <exercise_id>",
		Short: "Show an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/exercises/" + args[0])
			if err != nil {
				return fmt.Errorf("get exercise: %w", err)
			}
			var ex model.Exercise
			if err := decode(resp, &ex); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exercise: %s\n", ex.ID)
			fmt.Fprintf(out, "  Title:     %s\n", ex.Title)
			fmt.Fprintf(out, "  Grader:    %s\n", ex.GraderType)
			fmt.Fprintf(out, "  Anonymous: %t\n", ex.AnonymousAutoassessEnabled)
			if ex.AutoExerciseID != "" {
				fmt.Fprintf(out, "  Auto exercise: %s\n", ex.AutoExerciseID)
			}
			fmt.Fprintf(out, "  Created:   %s\n", since(ex.CreatedAt))
			return nil
		},
	}
}

func newExerciseGraderCmd() *cobra.Command {
	var anonymous string

	cmd := &cobra.Command{
		Use:   "grader <exercise_id> <TEACHER|AUTO>",
		Short: "Switch who grades new submissions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"grader_type": args[1]}
			switch anonymous {
			case "":
			case "on":
				req["anonymous_autoassess_enabled"] = true
			case "off":
				req["anonymous_autoassess_enabled"] = false
			default:
				return fmt.Errorf("--anonymous must be on or off")
			}

			resp, err := client.Put("/api/v1/exercises/"+args[0]+"/grader", req)
			if err != nil {
				return fmt.Errorf("set grader: %w", err)
			}
			var ex model.Exercise
			if err := decode(resp, &ex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exercise %s: grader %s, anonymous %t\n",
				ex.ID, ex.GraderType, ex.AnonymousAutoassessEnabled)
			return nil
		},
	}

	cmd.Flags().StringVar(&anonymous, "anonymous", "", "Turn anonymous grading on or off")
	return cmd
}

func newExerciseAnonymousCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "anonymous <exercise_id>",
		Short: "List the retained anonymous solutions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/exercises/" + args[0] + "/anonymous")
			if err != nil {
				return fmt.Errorf("list anonymous submissions: %w", err)
			}
			var subs []model.AnonymousSubmission
			if err := decode(resp, &subs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No anonymous submissions.")
				return nil
			}
			for _, s := range subs {
				fmt.Fprintf(out, "%s  grade=%d  %s\n", s.ID, s.Grade, since(s.CreatedAt))
			}
			return nil
		},
	}
}
