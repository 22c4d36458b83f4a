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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/blacktop/go-receipt/daemon"
	"github.com/blacktop/go-receipt/internal/certs"
	"github.com/blacktop/go-receipt/internal/config"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/caarlos0/ctrlc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "receiptd",
	Short:         "receipt validation daemon",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if conf.Daemon.Debug {
			log.SetLevel(log.DebugLevel)
		}

		v, err := newVerifier(conf)
		if err != nil {
			return err
		}

		d, err := daemon.NewDaemon(conf, v)
		if err != nil {
			return err
		}
		if err := ctrlc.Default.Run(context.Background(), d.Start); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Shutting down daemon...")
				return d.Stop()
			}
			return errors.Join(err, d.Stop())
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)
	cobra.OnInitialize(initConfig)
	// Flags
	var defaultConfg string
	switch runtime.GOOS {
	case "windows":
		defaultConfg = filepath.Join("$AppData", "receipt", "config.yaml")
	case "linux":
		defaultConfg = "/etc/receipt/config.yaml"
	default:
		defaultConfg = filepath.Join("$HOME", ".config", "receipt", "config.yaml")
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", fmt.Sprintf("config file (default is %s)", defaultConfg))
	rootCmd.Flags().String("host", "", "address to listen on")
	rootCmd.Flags().IntP("port", "p", 0, fmt.Sprintf("port to listen on (default %d)", config.DefaultPort))
	rootCmd.Flags().Bool("debug", false, "debug logging and gin debug mode")
	rootCmd.Flags().StringSliceP("root", "r", nil, "trusted root certificate (PEM or DER, repeatable)")
	viper.BindPFlag("daemon.host", rootCmd.Flags().Lookup("host"))
	viper.BindPFlag("daemon.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("daemon.debug", rootCmd.Flags().Lookup("debug"))
	viper.BindPFlag("roots", rootCmd.Flags().Lookup("root"))
	// Settings
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		switch runtime.GOOS {
		case "windows":
			dir := os.Getenv("AppData")
			if dir == "" {
				log.Error("init config: %AppData% is not defined")
			}
			viper.AddConfigPath(filepath.Join(dir, "receipt"))
		case "linux":
			viper.AddConfigPath(filepath.Join("/etc", "receipt"))
		}
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "receipt"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("receipt")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.WithField("config", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func newVerifier(conf *config.Config) (receipt.Verifier, error) {
	if len(conf.Roots) == 0 {
		return nil, fmt.Errorf("no trusted root certificate configured: set 'roots' or use --root")
	}
	roots, err := certs.LoadCertificates(conf.Roots...)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		log.WithFields(log.Fields{
			"subject": root.Subject.CommonName,
			"expires": root.NotAfter.Format(time.DateOnly),
		}).Info("trusting root")
	}
	var opts []receipt.VerifierOption
	if !conf.VerifyTime.IsZero() {
		log.WithField("at", conf.VerifyTime).Debug("validating signer chain at a fixed time")
		opts = append(opts, receipt.WithVerifyTime(conf.VerifyTime))
	}
	return receipt.NewVerifier(roots, opts...)
}
