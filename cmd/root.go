package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keycard/keycard"
	"keycard/output"
	"keycard/pairing"
	"keycard/transport"
)

var (
	version = "0.1.0"

	// Global flags
	readerName string
)

var rootCmd = &cobra.Command{
	Use:   "keycard",
	Short: "Status Keycard host client",
	Long: `Status Keycard host client v` + version + `

Talks to a Status Keycard applet over PC/SC: SELECT, PAIR, OPEN SECURE
CHANNEL, GET STATUS, GENERATE MNEMONIC and SIGN, with the ECDH/AES
secure channel and the two-step pairing cryptogram handled underneath.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&readerName, "reader", "r", "",
		"PC/SC reader name (omitted: auto-select if exactly one is present)")
	rootCmd.AddCommand(listReadersCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mnemonicCmd)
	rootCmd.AddCommand(signCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connectAndSelect opens a PC/SC session against readerName (auto-selecting
// when exactly one reader is present) and runs SELECT.
func connectAndSelect() (*keycard.Session, error) {
	t, err := transport.NewPCSC()
	if err != nil {
		return nil, fmt.Errorf("opening PC/SC context: %w", err)
	}

	name := readerName
	if name == "" {
		readers, err := t.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("listing readers: %w", err)
		}
		switch len(readers) {
		case 0:
			return nil, fmt.Errorf("no smart card readers found")
		case 1:
			name = readers[0]
			output.PrintSuccess(fmt.Sprintf("Auto-selected reader: %s", name))
		default:
			output.PrintReaderList(readers)
			return nil, fmt.Errorf("multiple readers found, use -r <name> to select one")
		}
	}

	session := keycard.NewSession(t)
	if err := session.Connect(name); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", name, err)
	}

	if _, err := session.Select(); err != nil {
		session.Close()
		return nil, fmt.Errorf("SELECT failed: %w", err)
	}
	return session, nil
}

// pairingRecordFromHex reconstructs a pairing.Record from the hex fields a
// prior `pair` run printed. The core keeps no on-disk pairing state, so the
// CLI demo takes it back in on every invocation that needs a secure channel.
func pairingRecordFromHex(index byte, keyHex, saltHex string) (pairing.Record, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return pairing.Record{}, fmt.Errorf("--pairing-key must be 32 bytes of hex")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != 32 {
		return pairing.Record{}, fmt.Errorf("--pairing-salt must be 32 bytes of hex")
	}
	rec := pairing.Record{Index: index}
	copy(rec.Key[:], key)
	copy(rec.Salt[:], salt)
	return rec, nil
}
