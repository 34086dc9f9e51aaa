package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofrs/flock"
)

// acquireLock takes an exclusive advisory lock on path without waiting.
func acquireLock(path string) (func(), bool, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			log.Warnf("[Allocate] Failed to release lock %s: %v", path, err)
		}
	}, true, nil
}
