package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:     "session-sync",
		Version: Version,
		Short:   "End-to-end encrypted sync of chat sessions across devices",
		Long: `session-sync keeps AI chat sessions in step across machines.

Sessions are encrypted with a passphrase-derived key before they leave the
device and stored in a private GitHub repository. Every sync pulls newer
remote sessions, then pushes newer local ones; overwritten remote copies are
kept as backups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatYAML, "Output format: yaml or json")

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "recovery", Title: "Recovery:"},
		&cobra.Group{ID: "local", Title: "Local State:"},
	)

	for _, c := range []*cobra.Command{newSetupCmd(opts), newSyncCmd(opts), newRunCmd(opts), newMCPCmd(opts)} {
		c.GroupID = "sync"
		root.AddCommand(c)
	}

	for _, c := range []*cobra.Command{newBackupsCmd(opts), newDiffCmd(opts), newRestoreCmd(opts)} {
		c.GroupID = "recovery"
		root.AddCommand(c)
	}

	for _, c := range []*cobra.Command{newStatusCmd(opts), newResetCmd(opts)} {
		c.GroupID = "local"
		root.AddCommand(c)
	}

	return root
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	output string
}
