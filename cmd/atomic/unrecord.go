package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
)

var unrecordChannel string

var unrecordCmd = &cobra.Command{
	Use:   "unrecord HASH",
	Short: "remove a patch from a channel, if nothing still depends on it",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnrecord,
}

func init() {
	unrecordCmd.Flags().StringVarP(&unrecordChannel, "channel", "c", "", "channel to unrecord from (default: config default)")
}

func runUnrecord(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	ch := unrecordChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	hash, err := patch.ParseHash(args[0])
	if err != nil {
		return err
	}

	err = r.Env.Update(func(txn *store.Txn) error {
		return apply.Unrecord(txn, r.Store, ch, hash)
	})
	if err != nil {
		return err
	}

	fmt.Printf("unrecorded %s from %s\n", hash, ch)
	return nil
}
