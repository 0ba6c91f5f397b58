package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/record"
	"github.com/atomic-vcs/atomic/internal/repo"
	"github.com/atomic-vcs/atomic/internal/store"
)

var (
	recordMessage string
	recordAuthor  string
	recordChannel string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "diff the working tree against a channel and record a new patch",
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordMessage, "message", "m", "", "patch message")
	recordCmd.Flags().StringVarP(&recordAuthor, "author", "A", "", "patch author")
	recordCmd.Flags().StringVarP(&recordChannel, "channel", "c", "", "channel to record onto (default: config default)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}
	defer r.Close()

	ch := recordChannel
	if ch == "" {
		ch = r.Config.Channel.Default
	}

	header := patch.Header{
		Message:   recordMessage,
		Timestamp: time.Now().Unix(),
	}
	if recordAuthor != "" {
		header.Authors = []string{recordAuthor}
	}

	var p *patch.Patch
	var result apply.Result
	err = r.Env.Update(func(txn *store.Txn) error {
		var recErr error
		p, result, recErr = record.Record(txn, r.Store, ch, r.Root, header, nil)
		return recErr
	})
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Println("nothing to record")
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"channel":   ch,
		"change_id": result.ChangeID,
		"verb":      "record",
	}).Info("recorded patch")
	fmt.Printf("recorded %s on %s (position %d)\n", p.Hash, ch, result.Position)
	return nil
}
