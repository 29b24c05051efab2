// Package output renders Session results as terminal tables and colored
// status lines for the CLI demo, using the same go-pretty rounded-table
// style the teacher's SIM tooling used for its own reports.
package output

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"keycard/info"
	"keycard/keycard"
	"keycard/pairing"
)

// Color styles
var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

// getTableStyle returns the default table style
func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

// newTable creates a new table writer with default settings
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintReaderList prints available PC/SC readers.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE SMART CARD READERS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 8},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})

	if len(readers) == 0 {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("No readers found")})
	} else {
		for i, r := range readers {
			t.AppendRow(table.Row{fmt.Sprintf("[%d]", i), r})
		}
	}
	t.Render()
}

// PrintApplicationInfo prints the parsed SELECT response.
func PrintApplicationInfo(i info.ApplicationInfo) {
	fmt.Println()
	t := newTable()
	t.SetTitle("KEYCARD APPLICATION INFO")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Initialized", i.IsInitialized()})
	t.AppendRow(table.Row{"Public key", fmt.Sprintf("%X", i.PublicKey)})
	if i.IsInitialized() {
		t.AppendRow(table.Row{"Instance UID", fmt.Sprintf("%X", i.InstanceUID)})
		t.AppendRow(table.Row{"Version", fmt.Sprintf("%d.%d", i.VersionMajor, i.VersionMinor)})
		t.AppendRow(table.Row{"Free pairing slots", i.FreeSlots})
		t.AppendRow(table.Row{"Capabilities", fmt.Sprintf("%#02x", i.Capabilities)})
		if i.HasKey() {
			t.AppendRow(table.Row{"Key UID", fmt.Sprintf("%X", i.KeyUID)})
		} else {
			t.AppendRow(table.Row{"Key UID", colorWarn.Sprint("no key loaded")})
		}
	}
	t.Render()
}

// PrintApplicationStatus prints a GET STATUS P1=0x00 result.
func PrintApplicationStatus(s info.ApplicationStatus) {
	fmt.Println()
	t := newTable()
	t.SetTitle("KEYCARD STATUS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 30},
	})
	t.AppendRow(table.Row{"PIN retries", s.PINRetryCount})
	t.AppendRow(table.Row{"PUK retries", s.PUKRetryCount})
	t.AppendRow(table.Row{"Key initialized", s.KeyInitialized})
	t.Render()
}

// PrintPairingRecord prints a freshly established pairing slot, including
// the hex fields the caller must persist to reopen a secure channel later.
func PrintPairingRecord(rec pairing.Record) {
	fmt.Println()
	t := newTable()
	t.SetTitle("PAIRING ESTABLISHED")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 66},
	})
	t.AppendRow(table.Row{"Pairing index", rec.Index})
	t.AppendRow(table.Row{"Pairing key", fmt.Sprintf("%X", rec.Key[:])})
	t.AppendRow(table.Row{"Salt", fmt.Sprintf("%X", rec.Salt[:])})
	t.Render()
	PrintWarning("Persist the pairing index, key and salt yourself; this client keeps no on-disk state.")
}

// PrintMnemonic prints a generated BIP39 word-index list.
func PrintMnemonic(words []uint16) {
	fmt.Println()
	t := newTable()
	t.SetTitle("GENERATED MNEMONIC (WORD INDEXES)")
	t.AppendHeader(table.Row{"#", "Index"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 4},
		{Number: 2, Colors: colorValue, WidthMin: 6},
	})
	for i, w := range words {
		t.AppendRow(table.Row{i + 1, w})
	}
	t.Render()
	PrintWarning("Resolve indexes against the standard BIP39 English wordlist to recover the phrase.")
}

// PrintSignature prints a SIGN result.
func PrintSignature(sig keycard.Signature) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SIGNATURE")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 12},
		{Number: 2, Colors: colorValue, WidthMin: 66},
	})
	t.AppendRow(table.Row{"r", fmt.Sprintf("%X", sig.R[:])})
	t.AppendRow(table.Row{"s", fmt.Sprintf("%X", sig.S[:])})
	if sig.HasRecID {
		t.AppendRow(table.Row{"recovery id", sig.RecoveryID})
	}
	if len(sig.PublicKey) > 0 {
		t.AppendRow(table.Row{"public key", fmt.Sprintf("%X", sig.PublicKey)})
	}
	t.Render()
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}
