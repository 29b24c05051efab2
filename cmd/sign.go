package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"keycard/keycard"
	"keycard/keypath"
	"keycard/output"
)

var (
	signPairingIndex   uint8
	signPairingKeyHex  string
	signPairingSaltHex string
	signHashHex        string
	signPath           string
	signDerive         string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "SIGN a 32-byte hash under a derived key",
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := hex.DecodeString(signHashHex)
		if err != nil || len(hash) != 32 {
			return fmt.Errorf("--hash must be 32 bytes of hex")
		}
		path, err := keypath.Parse(signPath)
		if err != nil {
			return err
		}
		opt, err := parseDerivationOption(signDerive)
		if err != nil {
			return err
		}

		s, serr := connectAndSelect()
		if serr != nil {
			return serr
		}
		defer s.Close()

		if opt != keycard.DerivePinless {
			rec, rerr := pairingRecordFromHex(signPairingIndex, signPairingKeyHex, signPairingSaltHex)
			if rerr != nil {
				return rerr
			}
			if kerr := s.OpenSecureChannel(rec, false); kerr != nil {
				return kerr
			}
		}

		sig, kerr := s.Sign(hash, opt, path)
		if kerr != nil {
			return kerr
		}
		output.PrintSignature(sig)
		return nil
	},
}

func parseDerivationOption(s string) (keycard.DerivationOption, error) {
	switch s {
	case "current":
		return keycard.DeriveCurrent, nil
	case "stay":
		return keycard.DeriveAndStay, nil
	case "make-current":
		return keycard.DeriveAndMakeCurrent, nil
	case "pinless":
		return keycard.DerivePinless, nil
	default:
		return 0, fmt.Errorf("--derive must be one of: current, stay, make-current, pinless")
	}
}

func init() {
	registerPairingFlags(signCmd, &signPairingIndex, &signPairingKeyHex, &signPairingSaltHex)
	signCmd.Flags().StringVar(&signHashHex, "hash", "", "32-byte hash to sign, hex")
	signCmd.Flags().StringVar(&signPath, "path", "", "BIP32 derivation path (e.g. m/44'/60'/0'/0/0)")
	signCmd.Flags().StringVar(&signDerive, "derive", "current", "derivation option: current, stay, make-current, pinless")
}
