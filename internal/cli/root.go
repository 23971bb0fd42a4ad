package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mixelka/codebox/internal/api"
)

// Version is set at build time
var Version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "codebox",
	Short: "Codebox - verification code inbox and authenticator",
	Long: `Codebox collects verification codes from Gmail, Outlook and IMAP mailboxes
and computes TOTP and Steam Guard codes for stored accounts.

Usage:
  codebox [command] [flags]

Available Commands:
  serve      Start the HTTP API server
  otp        Generate or inspect one-time passwords locally
  version    Print version information

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Codebox",
	Run: func(cmd *cobra.Command, args []string) {
		info := GetVersionInfo()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Codebox Version:", info.Version)
		fmt.Fprintln(out, "Go Version:", info.GoVersion)
		fmt.Fprintln(out, "OS/Arch:", info.OS+"/"+info.Arch)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
	api.Version = Version
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
