package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
	"github.com/atomic-vcs/atomic/internal/tag"
)

var (
	tagMessage       string
	tagAuthor        string
	tagChannel       string
	tagConsolidating bool
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "create a tag on a channel's current tip",
	RunE:  runTag,
}

func init() {
	tagCmd.Flags().StringVarP(&tagMessage, "message", "m", "", "tag message")
	tagCmd.Flags().StringVarP(&tagAuthor, "author", "A", "", "tag author")
	tagCmd.Flags().StringVarP(&tagChannel, "channel", "c", "", "channel to tag (default: config default)")
	tagCmd.Flags().BoolVar(&tagConsolidating, "consolidate", false, "create a consolidating tag that shortcuts all dependencies up to this point")
}

func runTag(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	ch := tagChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	var t *tagResult
	err = r.Env.Update(func(txn *store.Txn) error {
		built, err := tag.Create(txn, r.Store, ch, tag.Params{
			Author:        tagAuthor,
			Message:       tagMessage,
			Timestamp:     time.Now().Unix(),
			Consolidating: tagConsolidating,
		})
		if err != nil {
			return err
		}
		t = &tagResult{hash: built.Hash.String(), consolidated: len(built.ConsolidatedChanges)}
		return nil
	})
	if err != nil {
		return err
	}

	if tagConsolidating {
		fmt.Printf("tagged %s on %s, consolidating %d change(s)\n", t.hash, ch, t.consolidated)
	} else {
		fmt.Printf("tagged %s on %s\n", t.hash, ch)
	}
	return nil
}

type tagResult struct {
	hash         string
	consolidated int
}
