package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	skillAddName   string
	skillAddSource string
	skillAddFile   string
)

func init() {
	rootCmd.AddCommand(skillCmd)
	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillListCmd)

	skillAddCmd.Flags().StringVar(&skillAddName, "name", "", "display name (default: the skill id)")
	skillAddCmd.Flags().StringVar(&skillAddSource, "source", "", "where the skill came from, for provenance")
	skillAddCmd.Flags().StringVarP(&skillAddFile, "file", "f", "", "read the skill body from a file instead of stdin")
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage skill documents",
}

var skillAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add or update a local skill document",
	Long: `Add or update a skill in the project-local scope. The body is read
from --file, or from stdin when no file is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSkillAdd,
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resolvable skills",
	Args:  cobra.NoArgs,
	RunE:  runSkillList,
}

func runSkillAdd(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	var body []byte
	if skillAddFile != "" {
		if body, err = os.ReadFile(skillAddFile); err != nil {
			return fmt.Errorf("failed to read skill body: %w", err)
		}
	} else {
		if body, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("failed to read skill body from stdin: %w", err)
		}
	}

	id := args[0]
	name := skillAddName
	if name == "" {
		name = id
	}

	skill, err := application.skills.AddOrUpdate(id, name, string(body), skillAddSource)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(skill)
	}
	fmt.Printf("Saved skill %s (%s)\n", skill.ID, skill.Scope)
	return nil
}

func runSkillList(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	skills, err := application.skills.List()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(skills)
	}
	printSkillTable(skills)
	return nil
}
