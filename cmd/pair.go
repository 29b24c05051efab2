package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keycard/output"
)

var pairPassword string

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Run the PAIR cryptogram exchange and print the resulting pairing record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pairPassword == "" {
			return fmt.Errorf("--pairing-password is required")
		}
		s, err := connectAndSelect()
		if err != nil {
			return err
		}
		defer s.Close()

		rec, kerr := s.Pair(pairPassword)
		if kerr != nil {
			return kerr
		}
		output.PrintSuccess("Pairing established")
		output.PrintPairingRecord(rec)
		return nil
	},
}

func init() {
	pairCmd.Flags().StringVar(&pairPassword, "pairing-password", "", "pairing password shared with the card")
}
