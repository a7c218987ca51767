package cmd

import (
	"fmt"

	"headerswitch/config"
	"headerswitch/core"
	"headerswitch/logger"

	"github.com/spf13/cobra"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manages the header proxy's CA",
}

var proxyInitCACmd = &cobra.Command{
	Use:   "init-ca",
	Short: "Generates the root CA certificate and key the proxy uses for HTTPS",
	Long: `Generates a self-signed CA certificate and key at the configured paths. Trust the
certificate in your client so the proxy can rewrite headers of HTTPS requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		certPath := config.AppConfig.Proxy.CACertPath
		keyPath := config.AppConfig.Proxy.CAKeyPath
		if certPath == "" || keyPath == "" {
			logger.Error("CA certificate or key path is not defined in configuration.")
			return fmt.Errorf("proxy.ca_cert_path and proxy.ca_key_path must be set")
		}

		if err := core.GenerateAndSaveCA(certPath, keyPath); err != nil {
			return fmt.Errorf("generating CA: %w", err)
		}
		fmt.Printf("CA certificate: %s\nCA key:         %s\n", certPath, keyPath)
		fmt.Println("Import the certificate into your browser or system trust store.")
		return nil
	},
}

func init() {
	proxyCmd.AddCommand(proxyInitCACmd)
	rootCmd.AddCommand(proxyCmd)
}
