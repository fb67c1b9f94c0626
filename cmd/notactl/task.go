package main

import (
	taskRequest "NotaLink/internal/modules/scheduler/application/dto/request"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	taskTitle       string
	taskTrigger     string
	taskAt          string
	taskCron        string
	taskEvery       int64
	taskAction      string
	taskMessage     string
	taskPrompt      string
	taskURL         string
	taskMethod      string
	taskBody        string
	taskCommand     string
	taskChannel     string
	taskEnabledOnly bool
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [text...]",
	Short: "Create a task from free text or structured flags",
	Long: `Create a scheduled task.

With positional text the daemon parses it as natural language and may
answer with a structured rejection when confidence is low:

  notactl task create "remind me in 30 minutes to stretch"

Without text the structured flags are used:

  notactl task create --title backup --trigger cron --cron "0 3 * * *" \
      --action webhook --url https://ops.example.com/hooks/backup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := taskRequest.CreateTaskRequest{Channel: taskChannel}
		if len(args) > 0 {
			req.Text = strings.Join(args, " ")
		} else {
			if taskTitle == "" {
				return fmt.Errorf("provide free text or --title with trigger/action flags")
			}
			trigger, err := triggerTypeOf(taskTrigger)
			if err != nil {
				return err
			}
			action, err := actionTypeOf(taskAction)
			if err != nil {
				return err
			}
			req.Title = taskTitle
			req.TriggerType = trigger
			req.TriggerAt = taskAt
			req.CronExpr = taskCron
			req.EverySeconds = taskEvery
			req.ActionType = action
			req.Message = taskMessage
			req.Prompt = taskPrompt
			req.URL = taskURL
			req.Method = taskMethod
			req.Body = taskBody
			req.Command = taskCommand
		}
		data, err := callAPI("/task/createTask", req)
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your scheduled tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := callAPI("/task/getTaskList", taskRequest.TaskListRequest{EnabledOnly: taskEnabledOnly})
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		data, err := callAPI("/task/cancelTask", taskRequest.TaskActionRequest{TaskID: id})
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

// parseTaskID 兼容 list 输出里带 # 前缀的编号
func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}

func triggerTypeOf(name string) (int, error) {
	switch name {
	case "once":
		return 0, nil
	case "cron":
		return 1, nil
	case "interval":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown --trigger %q (want once, cron or interval)", name)
}

func actionTypeOf(name string) (int, error) {
	switch name {
	case "send_message":
		return 0, nil
	case "ai_prompt":
		return 1, nil
	case "webhook":
		return 2, nil
	case "command":
		return 3, nil
	}
	return 0, fmt.Errorf("unknown --action %q (want send_message, ai_prompt, webhook or command)", name)
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (structured mode)")
	taskCreateCmd.Flags().StringVar(&taskTrigger, "trigger", "once", "Trigger kind (once, cron, interval)")
	taskCreateCmd.Flags().StringVar(&taskAt, "at", "", "Fire time for once triggers, RFC3339")
	taskCreateCmd.Flags().StringVar(&taskCron, "cron", "", "Cron expression for cron triggers")
	taskCreateCmd.Flags().Int64Var(&taskEvery, "every", 0, "Interval in seconds for interval triggers")
	taskCreateCmd.Flags().StringVar(&taskAction, "action", "send_message", "Action kind (send_message, ai_prompt, webhook, command)")
	taskCreateCmd.Flags().StringVar(&taskMessage, "message", "", "Message text for send_message actions")
	taskCreateCmd.Flags().StringVar(&taskPrompt, "prompt", "", "Prompt for ai_prompt actions")
	taskCreateCmd.Flags().StringVar(&taskURL, "url", "", "Target URL for webhook actions")
	taskCreateCmd.Flags().StringVar(&taskMethod, "method", "", "HTTP method for webhook actions (default POST)")
	taskCreateCmd.Flags().StringVar(&taskBody, "body", "", "Request body for webhook actions")
	taskCreateCmd.Flags().StringVar(&taskCommand, "command", "", "Command line for command actions")
	taskCreateCmd.Flags().StringVar(&taskChannel, "channel", "", "Channel to deliver results on")
	taskListCmd.Flags().BoolVar(&taskEnabledOnly, "enabled-only", false, "Only show enabled tasks")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)
	rootCmd.AddCommand(taskCmd)
}
