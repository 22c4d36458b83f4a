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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blacktop/go-receipt/internal/colors"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attrsCmd)
	attrsCmd.MarkZshCompPositionalArgumentFile(1)
}

// attrsCmd represents the attrs command
var attrsCmd = &cobra.Command{
	Use:           "attrs <receipt>",
	Aliases:       []string{"a"},
	Short:         "Dump the raw receipt attributes",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadReceipt(args[0])
		if err != nil {
			return err
		}
		fmt.Print(formatAttributes(r.Attributes(), 0))
		return nil
	},
}

func formatAttributes(attrs receipt.Payload, depth int) string {
	var sb strings.Builder
	indent := strings.Repeat("  ", depth)
	for _, a := range attrs {
		fmt.Fprintf(&sb, "%s%s %s %s ",
			indent,
			colors.Label().Sprintf("%-4d", a.Type),
			colors.Faint().Sprintf("v%d", a.Version),
			receipt.TypeName(a.Type),
		)
		switch v := a.Describe().(type) {
		case receipt.Payload:
			fmt.Fprintf(&sb, "(%d attributes)\n", len(v))
			sb.WriteString(formatAttributes(v, depth+1))
		case string:
			fmt.Fprintf(&sb, "%q\n", v)
		case int:
			fmt.Fprintf(&sb, "%d\n", v)
		default:
			fmt.Fprintf(&sb, "%s\n", hex.EncodeToString(a.Value))
		}
	}
	return sb.String()
}
