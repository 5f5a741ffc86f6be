package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/pkg/models"
)

var tasksStatusFilter string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage persisted task records",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted task records",
	Long: `List the task records persisted by past runs.

Tasks mirror the in-memory registry at the moment each run finished:
one record per run, with the terminal status and result kind. A task
stuck in pending or running belongs to a run that crashed before
finalizing; 'warden tasks cancel' clears it.`,
	RunE: runTasksList,
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Mark a stale pending or running task as cancelled",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCancel,
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksStatusFilter, "status", "", "Filter by status: pending, running, completed, failed, cancelled")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCancelCmd)
}

func runTasksList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var filter *models.TaskStatus
	if tasksStatusFilter != "" {
		status := models.TaskStatus(tasksStatusFilter)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", tasksStatusFilter)
		}
		filter = &status
	}

	tasks, err := db.ListTasks(filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks recorded.")
		return nil
	}

	for _, task := range tasks {
		kind := ""
		if task.Result != nil {
			kind = string(task.Result.Kind)
		}
		fmt.Printf("%s  %-10s %-10s %s\n",
			task.ID, task.Status, kind, truncateText(task.Input, 60))
	}
	return nil
}

func runTasksCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	task, err := db.GetTask(args[0])
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task %s not found", args[0])
	}
	if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusRunning {
		return fmt.Errorf("task %s is already %s", task.ID, task.Status)
	}

	task.Status = models.TaskStatusCancelled
	task.UpdatedAt = time.Now().UTC()
	if err := db.SaveTask(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	fmt.Printf("Task %s cancelled.\n", task.ID)
	return nil
}
