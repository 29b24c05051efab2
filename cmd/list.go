package cmd

import (
	"github.com/spf13/cobra"

	"keycard/output"
	"keycard/transport"
)

var listReadersCmd = &cobra.Command{
	Use:   "list-readers",
	Short: "List available PC/SC readers",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := transport.NewPCSC()
		if err != nil {
			return err
		}
		readers, err := t.ListReaders()
		if err != nil {
			return err
		}
		output.PrintReaderList(readers)
		return nil
	},
}
