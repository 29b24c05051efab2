package cmd

import (
	"github.com/spf13/cobra"

	"keycard/output"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "SELECT the Keycard applet and print its application info",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectAndSelect()
		if err != nil {
			return err
		}
		defer s.Close()
		output.PrintApplicationInfo(s.Info())
		return nil
	},
}
