package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

// withRetry runs op, retrying on network_error with exponential
// backoff, per the recovery policy's "network_error is retriable".
func withRetry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errs.Retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Pull fetches everything remote has on ch that local lacks: the
// remote changelist from local's last known position, the patch body
// for each unknown hash (applied in log order), and for each trailing-
// dot (tagged) line, the short tag body followed by local regeneration
// of its full form (spec §4.9 "Pull").
func Pull(local *Server, remote Capability, ch string) error {
	var from uint64
	err := local.Env.View(func(txn *store.Txn) error {
		n, _, _, ok, err := channel.Tip(txn, ch)
		if err != nil {
			return err
		}
		if ok {
			from = n + 1
		}
		return nil
	})
	if err != nil {
		return err
	}

	var entries []ChangelistEntry
	if err := withRetry(func() error {
		var err error
		entries, err = remote.Changelist(ch, from)
		return err
	}); err != nil {
		return err
	}

	for _, e := range entries {
		var body []byte
		if err := withRetry(func() error {
			var err error
			body, err = remote.Change(e.Hash)
			return err
		}); err != nil {
			return err
		}
		if _, err := local.Apply(ch, body); err != nil {
			return err
		}
		if !e.Tagged {
			continue
		}
		tagHash, known, err := remote.TagHashAt(ch, e.N)
		if err != nil {
			return err
		}
		if !known {
			continue
		}
		var shortBody []byte
		if err := withRetry(func() error {
			var err error
			shortBody, err = remote.Tag(tagHash)
			return err
		}); err != nil {
			return err
		}
		if _, err := local.Tagup(ch, shortBody); err != nil {
			return err
		}
	}
	return nil
}

// Push uploads every local patch and tag on ch that remote lacks: the
// local changelist from position 0, diffed against remote's, each
// missing patch applied via the apply verb in log (hence topological)
// order, each missing tag uploaded in short form via tagup (spec §4.9
// "Push").
func Push(local *Server, remote Capability, ch string) error {
	localEntries, err := local.Changelist(ch, 0)
	if err != nil {
		return err
	}

	var remoteEntries []ChangelistEntry
	if err := withRetry(func() error {
		var err error
		remoteEntries, err = remote.Changelist(ch, 0)
		return err
	}); err != nil {
		return err
	}
	known := make(map[patch.Hash]bool, len(remoteEntries))
	for _, e := range remoteEntries {
		known[e.Hash] = true
	}

	for _, e := range localEntries {
		if known[e.Hash] {
			continue
		}
		body, err := local.Change(e.Hash)
		if err != nil {
			return err
		}
		if err := withRetry(func() error {
			_, err := remote.Apply(ch, body)
			return err
		}); err != nil {
			return err
		}
		if !e.Tagged {
			continue
		}
		tagHash, found, err := local.TagHashAt(ch, e.N)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		full, err := local.Store.LoadTag(tagHash)
		if err != nil {
			return err
		}
		short := full.ShortForm()
		shortBody := patch.EncodeFull(&short)
		if err := withRetry(func() error {
			_, err := remote.Tagup(ch, shortBody)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
