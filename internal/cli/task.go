package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/armada/internal/models"
	"github.com/tOgg1/armada/internal/task"
)

var (
	taskCreateName     string
	taskCreateSkill    string
	taskCreateProfile  string
	taskCreateBranch   string
	taskCreateConvo    string
	taskCreateRetain   bool
	taskCreateStart    bool
	taskStartAgent     string
	taskStartWait      bool
	taskGetWithHistory bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)

	taskCreateCmd.Flags().StringVar(&taskCreateName, "name", "", "human-readable run name")
	taskCreateCmd.Flags().StringVar(&taskCreateSkill, "skill", "", "skill id to inject as the run persona")
	taskCreateCmd.Flags().StringVar(&taskCreateProfile, "profile", "", "agent profile id")
	taskCreateCmd.Flags().StringVar(&taskCreateBranch, "base-branch", "", "branch to base the run worktree on")
	taskCreateCmd.Flags().StringVar(&taskCreateConvo, "conversation", "", "conversation id of a prior run to follow up on")
	taskCreateCmd.Flags().BoolVar(&taskCreateRetain, "retain-worktree", false, "keep the worktree after the run finishes")
	taskCreateCmd.Flags().BoolVar(&taskCreateStart, "start", false, "start the run immediately after creating it")

	taskStartCmd.Flags().StringVar(&taskStartAgent, "agent", "", "agent type override for this run")
	taskStartCmd.Flags().BoolVar(&taskStartWait, "wait", false, "block until the run reaches a terminal status")

	taskGetCmd.Flags().BoolVar(&taskGetWithHistory, "messages", false, "include the run's conversation")
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, start and inspect runs",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <prompt>",
	Short: "Create a queued run",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskCreate,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <run-id>",
	Short: "Start a queued run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var taskGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskGet,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all runs",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a queued or running run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	run, err := application.service.CreateTask(cmd.Context(), task.CreateTaskParams{
		Prompt:         strings.Join(args, " "),
		Name:           taskCreateName,
		SkillID:        taskCreateSkill,
		AgentProfileID: taskCreateProfile,
		BaseBranch:     taskCreateBranch,
		ConversationID: taskCreateConvo,
		RetainWorktree: taskCreateRetain,
	})
	if err != nil {
		return err
	}

	if taskCreateStart {
		if run, err = application.service.StartTask(cmd.Context(), run.ID, ""); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(run)
	}
	fmt.Printf("Created run %s (%s)\n", run.ID, run.Status)
	return nil
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	run, err := application.service.StartTask(cmd.Context(), args[0], taskStartAgent)
	if err != nil {
		return err
	}

	if taskStartWait {
		application.service.Wait(run.ID)
		if run, err = application.service.GetTask(cmd.Context(), run.ID); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(run)
	}
	fmt.Printf("Run %s is %s\n", run.ID, run.Status)
	return nil
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	run, err := application.service.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var messages []*models.Message
	if taskGetWithHistory {
		if messages, err = application.service.Messages(cmd.Context(), run.ID); err != nil {
			return err
		}
	}

	if jsonOutput {
		if taskGetWithHistory {
			return printJSON(map[string]any{"run": run, "messages": messages})
		}
		return printJSON(run)
	}

	printRunDetail(run)
	if taskGetWithHistory {
		fmt.Println()
		for _, message := range messages {
			fmt.Printf("[%s] %s\n", message.Role, message.Content)
		}
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	runs, err := application.service.GetAllTasks(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(runs)
	}
	printRunTable(runs)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.service.Cancel(cmd.Context(), args[0]); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]string{"id": args[0], "status": "cancelling"})
	}
	fmt.Printf("Cancellation requested for run %s\n", args[0])
	return nil
}
