package cmd

import (
	"github.com/spf13/cobra"

	"keycard/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "GET STATUS: PIN/PUK retry counters and key-loaded flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectAndSelect()
		if err != nil {
			return err
		}
		defer s.Close()

		st, kerr := s.GetStatus()
		if kerr != nil {
			return kerr
		}
		output.PrintApplicationStatus(st)
		return nil
	},
}
