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

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/go-receipt/internal/colors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("uuid", "u", "", "device identifierForVendor (iOS)")
	validateCmd.Flags().String("mac", "", "primary network interface MAC address as hex (macOS)")
	validateCmd.Flags().String("min-version", "", "minimum original application version the receipt must carry")
	validateCmd.MarkFlagsOneRequired("uuid", "mac")
	validateCmd.MarkFlagsMutuallyExclusive("uuid", "mac")
	validateCmd.MarkZshCompPositionalArgumentFile(1)

	viper.BindPFlag("validate.uuid", validateCmd.Flags().Lookup("uuid"))
	viper.BindPFlag("validate.mac", validateCmd.Flags().Lookup("mac"))
	viper.BindPFlag("validate.min-version", validateCmd.Flags().Lookup("min-version"))
}

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:           "validate <receipt>",
	Aliases:       []string{"v"},
	Short:         "Check that a receipt was issued to a device",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: heredoc.Doc(`
		# iOS: identifierForVendor
		$ receipt validate --root AppleIncRootCertificate.cer receipt --uuid 6F1C6B7E-5A5D-4D3B-9F3A-2B8E1C0D9A11

		# macOS: en0 MAC address
		$ receipt validate --root AppleIncRootCertificate.cer receipt --mac a4834f12c0de

		# Also require the app to have been originally bought at 2.0 or later
		$ receipt validate --root AppleIncRootCertificate.cer receipt --uuid 6F1C6B7E-5A5D-4D3B-9F3A-2B8E1C0D9A11 --min-version 2.0
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id []byte
		if s := viper.GetString("validate.uuid"); s != "" {
			u, err := uuid.Parse(s)
			if err != nil {
				return fmt.Errorf("invalid --uuid: %w", err)
			}
			id = u[:]
		} else {
			mac, err := hex.DecodeString(viper.GetString("validate.mac"))
			if err != nil {
				return fmt.Errorf("invalid --mac: %w", err)
			}
			id = mac
		}

		r, err := loadReceipt(args[0])
		if err != nil {
			return err
		}
		if err := r.ValidateDevice(id); err != nil {
			fmt.Println(colors.Fail().Sprint("✗ receipt was NOT issued to this device"))
			return err
		}
		log.WithField("device", hex.EncodeToString(id)).Debug("device hash matched")
		fmt.Println(colors.OK().Sprint("✓ receipt was issued to this device"))

		if minVer := viper.GetString("validate.min-version"); minVer != "" {
			info, err := r.Info()
			if err != nil {
				return err
			}
			ok, err := meetsMinVersion(info.OriginalApplicationVersion, minVer)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(colors.Fail().Sprintf("✗ original application version %s is older than %s", info.OriginalApplicationVersion, minVer))
				return fmt.Errorf("original application version %s < %s", info.OriginalApplicationVersion, minVer)
			}
			fmt.Println(colors.OK().Sprintf("✓ original application version %s >= %s", info.OriginalApplicationVersion, minVer))
		}
		return nil
	},
}

func meetsMinVersion(have, want string) (bool, error) {
	minVer, err := version.NewVersion(want)
	if err != nil {
		return false, fmt.Errorf("invalid --min-version %q: %w", want, err)
	}
	if have == "" {
		return false, nil
	}
	v, err := version.NewVersion(have)
	if err != nil {
		return false, fmt.Errorf("failed to parse original application version %q: %w", have, err)
	}
	return v.GreaterThanOrEqual(minVer), nil
}
