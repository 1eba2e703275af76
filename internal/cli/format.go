package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/me/autograde/pkg/model"
)

// interactive reports whether progress lines should be printed.
var interactive = func() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func progress(w io.Writer, format string, args ...any) {
	if interactive() {
		fmt.Fprintf(w, format+"\n", args...)
	}
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func optString(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func printLatest(w io.Writer, ls *model.LatestSubmission) {
	fmt.Fprintf(w, "Submission: %s (#%d)\n", ls.ID, ls.Number)
	fmt.Fprintf(w, "  Submitted: %s\n", since(ls.SubmissionTime))
	fmt.Fprintf(w, "  Status:    %s\n", ls.AutoGradeStatus)
	source := "teacher"
	if ls.IsAutoGrade {
		source = "auto"
	}
	if ls.Grade != nil {
		fmt.Fprintf(w, "  Grade:     %d (%s)\n", *ls.Grade, source)
	} else {
		fmt.Fprintf(w, "  Grade:     -\n")
	}
	if ls.FeedbackAuto != nil {
		fmt.Fprintf(w, "  Auto feedback:    %s\n", *ls.FeedbackAuto)
	}
	if ls.FeedbackTeacher != nil {
		fmt.Fprintf(w, "  Teacher feedback: %s\n", *ls.FeedbackTeacher)
	}
}

func printSubmission(w io.Writer, sub *model.Submission) {
	fmt.Fprintf(w, "Submission: %s (#%d)\n", sub.ID, sub.Number)
	fmt.Fprintf(w, "  Exercise:  %s\n", sub.ExerciseID)
	fmt.Fprintf(w, "  Student:   %s\n", sub.StudentID)
	fmt.Fprintf(w, "  Submitted: %s\n", since(sub.CreatedAt))
	fmt.Fprintf(w, "  Status:    %s\n", sub.AutoGradeStatus)
	fmt.Fprintf(w, "  Grade:     %s\n", optInt(sub.Grade))
}

func printActivity(w io.Writer, a *model.TeacherActivity) {
	fmt.Fprintf(w, "%s  teacher=%s  grade=%s  started %s\n",
		a.ID, a.TeacherID, optInt(a.Grade), since(a.MergeWindowStart))
	if a.Feedback != nil {
		fmt.Fprintf(w, "    %s\n", *a.Feedback)
	}
}

// readSolution takes the solution text from --solution or from a file.
func readSolution(file, text string) (string, error) {
	if file == "" {
		if text == "" {
			return "", fmt.Errorf("provide --file or --solution")
		}
		return text, nil
	}
	if text != "" {
		return "", fmt.Errorf("--file and --solution are exclusive")
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read solution: %w", err)
	}
	return string(data), nil
}
