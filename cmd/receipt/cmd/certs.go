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
	"fmt"
	"os"
	"time"

	"github.com/blacktop/go-receipt/internal/certs"
	"github.com/blacktop/go-receipt/internal/colors"
	"github.com/fullsailor/pkcs7"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.MarkZshCompPositionalArgumentFile(1)
}

// certsCmd represents the certs command
var certsCmd = &cobra.Command{
	Use:           "certs <receipt>",
	Short:         "List the certificates embedded in a receipt (not verified)",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read receipt %s: %w", args[0], err)
		}
		p7, err := pkcs7.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse receipt envelope: %w", err)
		}
		signer := p7.GetOnlySigner()
		now := time.Now()
		for i, cert := range p7.Certificates {
			title := fmt.Sprintf("Certificate %d", i)
			if signer != nil && cert.Equal(signer) {
				title += " (signer)"
			}
			fmt.Println(colors.Heading().Sprint(title))
			fmt.Println(certs.Describe(cert, now))
		}
		return nil
	},
}
