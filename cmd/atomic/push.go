package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/transport"
)

var pushChannel string

var pushCmd = &cobra.Command{
	Use:   "push REMOTE",
	Short: "upload patches missing from a remote channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushChannel, "channel", "c", "", "channel to push (default: config default)")
}

func runPush(cmd *cobra.Command, args []string) error {
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

	ch := pushChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	local := transport.New(r.Env, r.Store)
	if err := transport.Push(local, remote, ch); err != nil {
		return err
	}

	fmt.Printf("pushed %s to %s\n", ch, args[0])
	return nil
}
