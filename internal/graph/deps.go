package graph

import "github.com/atomic-vcs/atomic/internal/store"

// dep/revdep are channel-scoped: they track which applied patches on
// THIS channel depend on which (spec §3 "Dependency indices", §4.4
// step 6). dep[p] is the set of change IDs p directly depends on that
// are applied on the channel; revdep[d] is the set of direct
// dependents of d applied on the channel.
const (
	bucketDep    = "g_dep"
	bucketRevdep = "g_revdep"
)

// RecordDependency registers that p (on channel) directly depends on d.
func RecordDependency(txn *store.Txn, channel string, p, d ChangeID) error {
	dep, err := txn.Bucket(channelPath(channel, bucketDep)...)
	if err != nil {
		return err
	}
	if err := dep.PutUnique(encodeChangeID(p), encodeChangeID(d)); err != nil {
		return err
	}
	revdep, err := txn.Bucket(channelPath(channel, bucketRevdep)...)
	if err != nil {
		return err
	}
	return revdep.PutUnique(encodeChangeID(d), encodeChangeID(p))
}

// RemoveDependency undoes RecordDependency (used by Unrecord for the
// removed patch's own dependencies).
func RemoveDependency(txn *store.Txn, channel string, p, d ChangeID) error {
	dep, err := txn.Bucket(channelPath(channel, bucketDep)...)
	if err != nil {
		return err
	}
	if err := dep.DeleteUnique(encodeChangeID(p), encodeChangeID(d)); err != nil {
		return err
	}
	revdep, err := txn.Bucket(channelPath(channel, bucketRevdep)...)
	if err != nil {
		return err
	}
	return revdep.DeleteUnique(encodeChangeID(d), encodeChangeID(p))
}

// Dependents returns the change IDs of patches applied on channel that
// directly depend on d.
func Dependents(txn *store.Txn, channel string, d ChangeID) ([]ChangeID, error) {
	revdep, err := txn.Bucket(channelPath(channel, bucketRevdep)...)
	if err == store.ErrBucketNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var out []ChangeID
	err = revdep.ForEachUnique(encodeChangeID(d), func(member []byte) error {
		out = append(out, decodeChangeID(member))
		return nil
	})
	return out, err
}

// DependencyCount returns how many direct dependencies p has recorded
// on channel, used by consolidating-tag creation's dependency_count_before
// sum (spec §4.8 step 2).
func DependencyCount(txn *store.Txn, channel string, p ChangeID) (int, error) {
	dep, err := txn.Bucket(channelPath(channel, bucketDep)...)
	if err == store.ErrBucketNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	n := 0
	err = dep.ForEachUnique(encodeChangeID(p), func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// DependsOnTransitively reports whether y (a change ID applied on
// channel) transitively depends on x, walking the dep index. Used by
// the minimal-antichain reduction (spec §4.3) and by consolidating-tag
// coverage checks (spec P6).
func DependsOnTransitively(txn *store.Txn, channel string, y, x ChangeID) (bool, error) {
	if y == x {
		return false, nil
	}
	visited := map[ChangeID]bool{y: true}
	stack := []ChangeID{y}
	dep, err := txn.Bucket(channelPath(channel, bucketDep)...)
	if err == store.ErrBucketNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		var direct []ChangeID
		err = dep.ForEachUnique(encodeChangeID(cur), func(member []byte) error {
			direct = append(direct, decodeChangeID(member))
			return nil
		})
		if err != nil {
			return false, err
		}
		for _, d := range direct {
			if d == x {
				return true, nil
			}
			if !visited[d] {
				visited[d] = true
				stack = append(stack, d)
			}
		}
	}
	return false, nil
}
