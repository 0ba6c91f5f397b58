package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
	"github.com/atomic-vcs/atomic/internal/transport"
	"github.com/atomic-vcs/atomic/internal/worktree"
)

var cloneChannel string

var cloneCmd = &cobra.Command{
	Use:   "clone REMOTE DIRECTORY",
	Short: "create a new repository, seeded from a remote's current working tree and history",
	Args:  cobra.ExactArgs(2),
	RunE:  runClone,
}

func init() {
	cloneCmd.Flags().StringVarP(&cloneChannel, "channel", "c", "", "remote channel to clone (default: config default)")
}

func runClone(cmd *cobra.Command, args []string) error {
	remoteName, dir := args[0], args[1]

	r, err := repo.Init(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	ch := cloneChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	rc, err := lookupRemote(cfg, remoteName)
	if err != nil {
		return err
	}
	remote, closeRemote, err := resolveRemote(rc)
	if err != nil {
		return err
	}
	defer closeRemote()

	if err := r.Env.Update(func(txn *store.Txn) error {
		_, err := channel.Create(txn, ch)
		return err
	}); err != nil {
		return err
	}

	local := transport.New(r.Env, r.Store)
	if err := transport.Pull(local, remote, ch); err != nil {
		return err
	}

	var archive bytes.Buffer
	if err := remote.Archive(ch, &archive); err != nil {
		return err
	}
	if err := worktree.ExtractArchive(r.Root, &archive); err != nil {
		return err
	}

	fmt.Printf("cloned %s into %s (channel %q)\n", remoteName, dir, ch)
	return nil
}
