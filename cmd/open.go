package cmd

import (
	"github.com/spf13/cobra"

	"keycard/output"
)

var (
	openPairingIndex   uint8
	openPairingKeyHex  string
	openPairingSaltHex string
	openSkipMutualAuth bool
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a secure channel under a previously established pairing and run MUTUALLY AUTHENTICATE",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := pairingRecordFromHex(openPairingIndex, openPairingKeyHex, openPairingSaltHex)
		if err != nil {
			return err
		}
		s, serr := connectAndSelect()
		if serr != nil {
			return serr
		}
		defer s.Close()

		if kerr := s.OpenSecureChannel(rec, openSkipMutualAuth); kerr != nil {
			return kerr
		}
		if openSkipMutualAuth {
			output.PrintSuccess("Secure channel open (MUTUALLY AUTHENTICATE skipped)")
		} else {
			output.PrintSuccess("Secure channel open and mutually authenticated")
		}
		return nil
	},
}

func registerPairingFlags(cmd *cobra.Command, index *uint8, keyHex, saltHex *string) {
	cmd.Flags().Uint8Var(index, "pairing-index", 0, "pairing slot index from a prior `pair` run")
	cmd.Flags().StringVar(keyHex, "pairing-key", "", "32-byte pairing key, hex, from a prior `pair` run")
	cmd.Flags().StringVar(saltHex, "pairing-salt", "", "32-byte pairing salt, hex, from a prior `pair` run")
}

func init() {
	registerPairingFlags(openCmd, &openPairingIndex, &openPairingKeyHex, &openPairingSaltHex)
	openCmd.Flags().BoolVar(&openSkipMutualAuth, "skip-mutual-auth", false, "open the channel without running MUTUALLY AUTHENTICATE")
}
