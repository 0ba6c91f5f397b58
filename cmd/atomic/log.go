package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
)

var logChannel string

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "show the applied patch log for a channel",
	RunE:  runLog,
}

func init() {
	logCmd.Flags().StringVarP(&logChannel, "channel", "c", "", "channel to inspect (default: config default)")
}

func runLog(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	ch := logChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	return r.Env.View(func(txn *store.Txn) error {
		n, _, state, ok, err := channel.Tip(txn, ch)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("channel %q is empty\n", ch)
			return nil
		}
		fmt.Printf("channel %q at position %d, state %s\n\n", ch, n, state.String())

		return channel.Walk(txn, ch, 0, func(pos uint64, changeID graph.ChangeID, state channel.StateHash, tagged byte) error {
			hash, ok, err := graph.HashOf(txn, changeID)
			if err != nil {
				return err
			}
			mark := ""
			if tagged != 0 {
				mark = " [tag]"
			}
			if ok {
				fmt.Printf("%4d  %s%s\n", pos, hash.String(), mark)
			} else {
				fmt.Printf("%4d  <unknown>%s\n", pos, mark)
			}
			return nil
		})
	})
}
