// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

// Package updater appends new points to the plot files read by the dataset
// package, from a node's JSON-RPC server and from the GitHub and CoinGecko
// HTTP APIs.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Updater updates one or more plot files.
type Updater interface {
	Name() string
	// Update adds the new points and writes the plot files, returning the
	// number of points added.
	Update(ctx context.Context) (int, error)
}

// UpdateError lists the updaters that failed.
type UpdateError struct {
	Errs map[string]error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%d updater(s) failed", len(e.Errs))
}

// RunOnce runs each updater once, in order. Failed updaters do not stop the
// following ones, and are reported in an *UpdateError.
func RunOnce(ctx context.Context, updaters ...Updater) error {
	errs := make(map[string]error)
	for _, u := range updaters {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		n, err := u.Update(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Infof("%s update canceled after %s points.", u.Name(), humanize.Comma(int64(n)))
				return err
			}
			log.Errorf("%s update failed: %v", u.Name(), err)
			errs[u.Name()] = err
			continue
		}
		log.Infof("%s update added %s points in %v.", u.Name(), humanize.Comma(int64(n)),
			time.Since(start).Round(time.Millisecond))
	}
	if len(errs) > 0 {
		return &UpdateError{Errs: errs}
	}
	return ctx.Err()
}

// Run runs the updaters now and then every interval until ctx is canceled.
func Run(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, updaters ...Updater) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := RunOnce(ctx, updaters...); err != nil && ctx.Err() == nil {
			log.Warnf("Update incomplete: %v. Retrying in %v.", err, interval)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Debugf("Got quit signal. Exiting the update loop.")
			return
		}
	}
}
