/*
Copyright © 2026 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/blacktop/go-plist"
	"github.com/blacktop/go-receipt/internal/colors"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	infoCmd.Flags().BoolP("yaml", "y", false, "Output as YAML")
	infoCmd.Flags().BoolP("plist", "p", false, "Output as XML plist")
	infoCmd.MarkFlagsMutuallyExclusive("json", "yaml", "plist")
	infoCmd.MarkZshCompPositionalArgumentFile(1)

	viper.BindPFlag("info.json", infoCmd.Flags().Lookup("json"))
	viper.BindPFlag("info.yaml", infoCmd.Flags().Lookup("yaml"))
	viper.BindPFlag("info.plist", infoCmd.Flags().Lookup("plist"))
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:           "info <receipt>",
	Aliases:       []string{"i"},
	Short:         "Verify a receipt and display its fields",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: heredoc.Doc(`
		# Verify against Apple's root and show the receipt
		$ receipt info --root AppleIncRootCertificate.cer receipt

		# Dump as JSON and pipe to jq
		$ receipt info --root AppleIncRootCertificate.cer receipt --json | jq .in_app

		# Inspect a captured receipt without verifying it
		$ receipt info --insecure receipt --yaml
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadReceipt(args[0])
		if err != nil {
			return err
		}
		info, err := r.Info()
		if err != nil {
			return err
		}

		switch {
		case viper.GetBool("info.json"):
			dat, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal receipt info: %v", err)
			}
			if colors.Enabled() {
				return quick.Highlight(os.Stdout, string(dat)+"\n", "json", "terminal256", "nord")
			}
			fmt.Println(string(dat))
		case viper.GetBool("info.yaml"):
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(info); err != nil {
				return fmt.Errorf("failed to marshal receipt info: %v", err)
			}
			return enc.Close()
		case viper.GetBool("info.plist"):
			dat, err := plist.MarshalIndent(info, plist.XMLFormat, "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal receipt info: %v", err)
			}
			fmt.Println(string(dat))
		default:
			fmt.Print(formatInfo(info, len(r.Raw()), time.Now()))
		}
		return nil
	},
}

func formatInfo(info *receipt.Info, size int, now time.Time) string {
	var sb strings.Builder
	field := func(name string, value any) {
		fmt.Fprintf(&sb, "%-30s %v\n", colors.Label().Sprint(name+":"), value)
	}
	date := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), humanize.RelTime(*t, now, "ago", "from now"))
	}

	fmt.Fprintln(&sb, colors.Heading().Sprint("Receipt"))
	field("Bundle ID", info.BundleID)
	field("App Version", info.ApplicationVersion)
	field("Original Version", info.OriginalApplicationVersion)
	if info.ReceiptType != "" {
		field("Type", info.ReceiptType)
	}
	if info.AppItemID != 0 {
		field("App Item ID", info.AppItemID)
	}
	field("Created", date(info.CreationDate))
	if info.ExpirationDate != nil {
		field("Expires", date(info.ExpirationDate))
	}
	field("Payload", humanize.Bytes(uint64(size)))

	if len(info.InAppPurchases) > 0 {
		fmt.Fprintf(&sb, "\n%s (%d)\n", colors.Heading().Sprint("In-App Purchases"), len(info.InAppPurchases))
	}
	for _, p := range info.InAppPurchases {
		state := colors.Good().Sprint("active")
		switch {
		case p.IsCancelled(now):
			state = colors.Bad().Sprint("cancelled")
		case p.ExpiresDate != nil && p.IsExpired(now):
			state = colors.Warn().Sprint("expired")
		}
		fmt.Fprintf(&sb, "  %s %s x%d %s [%s]\n", p.TransactionID, p.ProductID, p.Quantity, colors.Faint().Sprint(p.ProductType), state)
		fmt.Fprintf(&sb, "    purchased %s\n", date(p.PurchaseDate))
		if p.ExpiresDate != nil {
			fmt.Fprintf(&sb, "    expires   %s\n", date(p.ExpiresDate))
		}
	}
	if len(info.Unknown) > 0 {
		fmt.Fprintf(&sb, "\n%s %d (see 'receipt attrs')\n", colors.Label().Sprint("Unknown attributes:"), len(info.Unknown))
	}
	return sb.String()
}
