package channel

import "github.com/atomic-vcs/atomic/internal/errs"

func errAlreadyExists(name string) error {
	return errs.Newf(errs.KindConflict, "channel %q already exists", name)
}

func errNotFound(name string) error {
	return errs.Newf(errs.KindNotFound, "channel %q not found", name)
}
