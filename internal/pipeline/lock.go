package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	lockFileName = "meta_engine.lock"
	// lockStaleAfter is how old a lock file must be before a new run
	// assumes the holder crashed and steals it.
	lockStaleAfter = 30 * time.Minute
)

// runLock is an exclusive file lock that keeps two pipeline runs from
// interleaving writes to the output dir and trade ledger.
type runLock struct {
	path   string
	logger *logrus.Logger
}

func newRunLock(outputDir string, logger *logrus.Logger) *runLock {
	return &runLock{path: filepath.Join(outputDir, lockFileName), logger: logger}
}

// acquire takes the lock or fails. A lock older than lockStaleAfter is
// treated as abandoned and broken.
func (l *runLock) acquire(now time.Time) error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d started=%s\n", os.Getpid(), now.Format(time.RFC3339))
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file: %w", err)
		}

		info, statErr := os.Stat(l.path)
		if statErr != nil {
			// Holder released between our open and stat; retry.
			continue
		}
		if age := now.Sub(info.ModTime()); age > lockStaleAfter {
			l.logger.WithField("age", age.Round(time.Second)).Warn("Breaking stale run lock")
			if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("breaking stale lock: %w", rmErr)
			}
			continue
		}
		return fmt.Errorf("another run holds the lock at %s", l.path)
	}
	return fmt.Errorf("could not acquire lock at %s", l.path)
}

func (l *runLock) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.WithError(err).Warn("Releasing run lock failed")
	}
}
