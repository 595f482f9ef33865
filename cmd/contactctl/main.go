// contactctl manages the mail configuration used by contactd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/internal/diagnose"
	"github.com/dalemusser/contactrelay/pantry/version"
	"github.com/spf13/cobra"
)

const defaultMailConfig = "/etc/contactrelay/mail.toml"

var rootCmd = &cobra.Command{
	Use:   "contactctl",
	Short: "Manage and diagnose the contact form mail configuration",
	Long: `contactctl creates and checks the mail configuration file read by contactd.
The file holds transport credentials and must be readable only by the
service user.`,
	SilenceUsage: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the mail configuration, transport and SPF record",
	Long: `Check loads the mail configuration, connects to the configured transport,
and looks up the sender domain's SPF record for the sending host.

Example:
  contactctl check --mail-config /etc/contactrelay/mail.toml
  contactctl check --send     # also send a test message to the recipient`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("mail-config")
		send, _ := cmd.Flags().GetBool("send")
		strict, _ := cmd.Flags().GetBool("strict")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := &diagnose.Checker{ConfigPath: path, Send: send, StrictPerms: strict}
		rep := c.Run(ctx)
		rep.Print(cmd.OutOrStdout())
		if rep.Failed() {
			os.Exit(1)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a mail configuration template",
	Long: `Init writes a commented mail configuration template with mode 0600.
Replace every INSERT_ value before starting contactd.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultMailConfig
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := writeTemplate(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nEdit it, then run: contactctl check --mail-config %s\n", path, path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

// writeTemplate creates path with the template. An existing file is kept
// unless force is set.
func writeTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(config.MailConfigTemplate), 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	checkCmd.Flags().String("mail-config", defaultMailConfig, "Path to the mail configuration file")
	checkCmd.Flags().Bool("send", false, "Send a test message to the configured recipient")
	checkCmd.Flags().Bool("strict", false, "Fail when the file is readable by group or others")

	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
