package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/tOgg1/armada/internal/models"
)

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printRunTable(runs []*models.Run) {
	if len(runs) == 0 {
		fmt.Println("No runs.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPHASE\tPROGRESS\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			run.ID,
			run.Name,
			run.Status,
			run.Phase,
			run.ProgressPercent,
			run.CreatedAt.Local().Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}

func printRunDetail(run *models.Run) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", run.ID)
	if run.Name != "" {
		fmt.Fprintf(w, "Name:\t%s\n", run.Name)
	}
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.Phase != "" {
		fmt.Fprintf(w, "Phase:\t%s\n", run.Phase)
	}
	fmt.Fprintf(w, "Prompt:\t%s\n", run.Prompt)
	if run.SkillID != "" {
		fmt.Fprintf(w, "Skill:\t%s\n", run.SkillID)
	}
	fmt.Fprintf(w, "Base branch:\t%s\n", run.BaseBranch)
	if run.WorktreePath != "" {
		fmt.Fprintf(w, "Worktree:\t%s\n", run.WorktreePath)
	}
	if run.TotalSubtasks > 0 {
		fmt.Fprintf(w, "Subtasks:\t%d/%d\n", run.CompletedSubtasks, run.TotalSubtasks)
	}
	fmt.Fprintf(w, "Progress:\t%d%%\n", run.ProgressPercent)
	fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.Local().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", run.CompletedAt.Local().Format(time.RFC3339))
	}
	if run.DurationMs != nil {
		fmt.Fprintf(w, "Duration:\t%s\n", time.Duration(*run.DurationMs)*time.Millisecond)
	}
	_ = w.Flush()
}

func printSkillTable(skills []*models.Skill) {
	if len(skills) == 0 {
		fmt.Println("No skills.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCOPE\tSOURCE")
	for _, skill := range skills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", skill.ID, skill.Name, skill.Scope, skill.Source)
	}
	_ = w.Flush()
}
