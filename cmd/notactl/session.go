package main

import (
	sessionRequest "NotaLink/internal/modules/session/application/dto/request"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sessionStatus  string
	sessionChannel string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := sessionRequest.SessionListRequest{Channel: sessionChannel}
		if sessionStatus != "" {
			status, err := sessionStatusOf(sessionStatus)
			if err != nil {
				return err
			}
			req.Status = &status
		}
		data, err := callAPI("/session/getSessionList", req)
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause a session",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionAction("/session/pauseSession"),
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionAction("/session/resumeSession"),
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session permanently",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionAction("/session/endSession"),
}

// sessionAction pause/resume/end 都是同一个请求形状
func sessionAction(path string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		data, err := callAPI(path, sessionRequest.SessionActionRequest{SessionID: args[0]})
		if err != nil {
			return err
		}
		return printResult(data)
	}
}

func sessionStatusOf(name string) (int, error) {
	switch name {
	case "active":
		return 0, nil
	case "paused":
		return 1, nil
	case "ended":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown --status %q (want active, paused or ended)", name)
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionStatus, "status", "", "Filter by status (active, paused, ended)")
	sessionListCmd.Flags().StringVar(&sessionChannel, "channel", "", "Filter by channel")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}
