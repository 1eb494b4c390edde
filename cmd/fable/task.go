package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taleweave/fable/pkg/client"
)

const defaultServer = "http://localhost:8000"

func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = defaultServer
	}
	return client.NewClient(server)
}

// Task commands
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage translation tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit FILE...",
	Short: "Submit audio files (or a ZIP bundle) as a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		targets, _ := cmd.Flags().GetStringSlice("target")
		story, _ := cmd.Flags().GetString("story")

		var files []client.FileUpload
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %v", path, err)
			}
			defer f.Close()
			files = append(files, client.FileUpload{Name: filepath.Base(path), Content: f})
		}

		ack, err := apiClient(cmd).SubmitTask(client.SubmitOptions{
			SourceLanguage:  source,
			TargetLanguages: targets,
			StoryName:       story,
			Files:           files,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ %s\n", ack.Message)
		fmt.Printf("  Task ID: %s\n", ack.TaskID)
		fmt.Printf("  Status:  %s\n", ack.Status)
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status TASK_ID",
	Short: "Show the status of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).Task(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Task:     %s\n", task.TaskID)
		fmt.Printf("Status:   %s\n", task.Status)
		fmt.Printf("Progress: %.0f%%\n", task.Progress*100)
		fmt.Printf("Created:  %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:  %s\n", task.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		if task.AssignedWorker != "" {
			fmt.Printf("Worker:   %s\n", task.AssignedWorker)
		}
		if task.RetryCount > 0 {
			fmt.Printf("Retries:  %d\n", task.RetryCount)
		}
		if task.ErrorMessage != "" {
			fmt.Printf("Error:    %s\n", task.ErrorMessage)
		}
		return nil
	},
}

var taskResultsCmd = &cobra.Command{
	Use:   "results TASK_ID",
	Short: "Print the packed results of a completed task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		packed, err := apiClient(cmd).Results(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(packed, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel TASK_ID",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ack, err := apiClient(cmd).Cancel(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", ack.Message)
		return nil
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry TASK_ID",
	Short: "Requeue a failed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ack, err := apiClient(cmd).Retry(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", ack.Message)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		tasks, err := apiClient(cmd).Tasks(status, limit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		fmt.Printf("%-36s  %-10s  %8s  %s\n", "TASK ID", "STATUS", "PROGRESS", "UPDATED")
		for _, task := range tasks {
			fmt.Printf("%-36s  %-10s  %7.0f%%  %s\n",
				task.TaskID, task.Status, task.Progress*100,
				task.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient(cmd).Statistics()
		if err != nil {
			return err
		}
		for _, status := range []string{"pending", "processing", "completed", "failed", "cancelled", "retry"} {
			fmt.Printf("%-12s %d\n", status+":", stats[status])
		}
		fmt.Printf("%-12s %d\n", "total:", stats["total"])
		return nil
	},
}

// Story commands
var storyCmd = &cobra.Command{
	Use:   "story",
	Short: "Query story content",
}

var storyTextCmd = &cobra.Command{
	Use:   "text NAME",
	Short: "Fetch one piece of story content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		textID, _ := cmd.Flags().GetString("id")
		source, _ := cmd.Flags().GetString("from")

		content, err := apiClient(cmd).StoryText(args[0], lang, textID, source)
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil
	},
}

// Worker overview
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List live workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, err := apiClient(cmd).Workers()
		if err != nil {
			return err
		}
		if len(workers) == 0 {
			fmt.Println("No live workers.")
			return nil
		}

		fmt.Printf("%-16s  %-9s  %6s  %9s  %6s  %s\n",
			"WORKER", "STATUS", "ACTIVE", "COMPLETED", "FAILED", "LAST HEARTBEAT")
		for _, w := range workers {
			fmt.Printf("%-16s  %-9s  %6d  %9d  %6d  %s\n",
				w.WorkerID, w.Status, w.ActiveTasks, w.CompletedTasks, w.FailedTasks,
				w.LastHeartbeat.Local().Format("15:04:05"))
		}
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskResultsCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskRetryCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskStatsCmd)
	storyCmd.AddCommand(storyTextCmd)

	for _, cmd := range []*cobra.Command{taskCmd, storyCmd, workersCmd} {
		cmd.PersistentFlags().String("server", defaultServer, "Base URL of the fable API")
	}

	taskSubmitCmd.Flags().String("source", "", "Source language code (server default: en)")
	taskSubmitCmd.Flags().StringSlice("target", nil, "Target language codes (server default: zh,ja)")
	taskSubmitCmd.Flags().String("story", "", "Story name to associate with the task")

	taskListCmd.Flags().String("status", "", "Filter by status")
	taskListCmd.Flags().Int("limit", 0, "Maximum number of tasks (server default: 100)")

	storyTextCmd.Flags().String("lang", "", "Language code")
	storyTextCmd.Flags().String("id", "", "File id, for example segment_001")
	storyTextCmd.Flags().String("from", "TEXT", "Content source: TEXT, AUDIO or TRANSLATION")
	storyTextCmd.MarkFlagRequired("lang")
	storyTextCmd.MarkFlagRequired("id")
}
