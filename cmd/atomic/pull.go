package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/transport"
)

var pullChannel string

var pullCmd = &cobra.Command{
	Use:   "pull REMOTE",
	Short: "fetch and apply patches missing from a local channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().StringVarP(&pullChannel, "channel", "c", "", "channel to pull into (default: config default)")
}

func runPull(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	rc, err := lookupRemote(cfg, args[0])
	if err != nil {
		return err
	}
	remote, closeRemote, err := resolveRemote(rc)
	if err != nil {
		return err
	}
	defer closeRemote()

	ch := pullChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	local := transport.New(r.Env, r.Store)
	if err := transport.Pull(local, remote, ch); err != nil {
		return err
	}

	fmt.Printf("pulled into %s from %s\n", ch, args[0])
	return nil
}
