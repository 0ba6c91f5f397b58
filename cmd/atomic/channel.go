package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "list, create, or inspect channels",
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the channels in this repository",
	RunE:  runChannelList,
}

var channelNewCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "create a new, empty channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelNew,
}

func init() {
	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelNewCmd)
}

func runChannelList(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Env.View(func(txn *store.Txn) error {
		names, err := channel.List(txn)
		if err != nil {
			return err
		}
		for _, name := range names {
			marker := " "
			if name == r.Config.Channel.Default {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	})
}

func runChannelNew(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	name := args[0]
	err = r.Env.Update(func(txn *store.Txn) error {
		_, err := channel.Create(txn, name)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("created channel %q\n", name)
	return nil
}
