package main

import (
	"fmt"
	"io"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/pkg/errors"
)

// A batch runs an operation on several items and reports each outcome.
type batch struct {
	w      io.Writer
	total  int
	failed []error
}

func (b *batch) run(item string, fn func() (string, error)) {
	b.total++

	message, err := fn()
	if err != nil {
		fmt.Fprintf(b.w, "%s: %s\n", item, err)
		b.failed = append(b.failed, err)
		return
	}
	fmt.Fprintf(b.w, "%s: %s\n", item, message)
}

// err returns nil when every item succeeded.
// A non user error takes precedence so the exit code reflects the worst failure.
func (b *batch) err() error {
	if len(b.failed) == 0 {
		return nil
	}

	worst := b.failed[0]
	for _, err := range b.failed {
		if !control.IsUserError(err) {
			worst = err
			break
		}
	}
	return errors.Wrapf(worst, "%d of %d failed", len(b.failed), b.total)
}
