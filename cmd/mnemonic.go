package cmd

import (
	"github.com/spf13/cobra"

	"keycard/output"
)

var (
	mnemonicPairingIndex   uint8
	mnemonicPairingKeyHex  string
	mnemonicPairingSaltHex string
	mnemonicChecksumBits   int
)

var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "GENERATE MNEMONIC: ask the card for a fresh BIP39 seed's word indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := pairingRecordFromHex(mnemonicPairingIndex, mnemonicPairingKeyHex, mnemonicPairingSaltHex)
		if err != nil {
			return err
		}
		s, serr := connectAndSelect()
		if serr != nil {
			return serr
		}
		defer s.Close()

		if kerr := s.OpenSecureChannel(rec, false); kerr != nil {
			return kerr
		}

		words, kerr := s.GenerateMnemonic(mnemonicChecksumBits)
		if kerr != nil {
			return kerr
		}
		output.PrintMnemonic(words)
		return nil
	},
}

func init() {
	registerPairingFlags(mnemonicCmd, &mnemonicPairingIndex, &mnemonicPairingKeyHex, &mnemonicPairingSaltHex)
	mnemonicCmd.Flags().IntVar(&mnemonicChecksumBits, "checksum-bits", 8, "BIP39 checksum bits (4-8; determines word count)")
}
