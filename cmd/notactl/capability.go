package main

import (
	"github.com/spf13/cobra"
)

var capabilityCmd = &cobra.Command{
	Use:   "capability",
	Short: "Inspect the capability catalog",
}

var capabilityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List capabilities visible to your entitlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := callAPI("/capability/getCapabilityList", nil)
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

func init() {
	capabilityCmd.AddCommand(capabilityListCmd)
	rootCmd.AddCommand(capabilityCmd)
}
