package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "create a new repository",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	r, err := repo.Init(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Env.Update(func(txn *store.Txn) error {
		_, err := channel.Create(txn, r.Config.Channel.Default)
		return err
	}); err != nil {
		return err
	}

	fmt.Printf("initialized repository in %s (channel %q)\n", r.Root, r.Config.Channel.Default)
	return nil
}
