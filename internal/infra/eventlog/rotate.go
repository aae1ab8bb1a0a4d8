package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"necrocode/taskset"
)

// rotateWorkers bounds the concurrent spec walks during rotation.
const rotateWorkers = 4

// Rotate renames every live log whose size has reached maxBytes to the
// lowest unused events.jsonl.<N> suffix. The next Record recreates the live
// file. Returns the rotated paths, sorted.
func (s *Store) Rotate(ctx context.Context, maxBytes int64) ([]string, error) {
	if maxBytes <= 0 {
		return nil, taskset.IOError(fmt.Sprintf("rotate: max bytes %d is not positive", maxBytes), nil)
	}
	entries, err := os.ReadDir(s.roots.Events)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, taskset.IOError("list event directories", err)
	}

	var (
		mu      sync.Mutex
		rotated []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(rotateWorkers)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		spec := entry.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := s.rotateSpec(spec, maxBytes)
			if err != nil {
				return err
			}
			if path != "" {
				mu.Lock()
				rotated = append(rotated, path)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(rotated)
	return rotated, nil
}

func (s *Store) rotateSpec(spec string, maxBytes int64) (string, error) {
	live := s.roots.EventsFile(spec)
	info, err := os.Stat(live)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", taskset.IOError("stat event log for spec "+spec, err)
	}
	if info.Size() < maxBytes {
		return "", nil
	}

	var target string
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", live, n)
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			target = candidate
			break
		}
		if err != nil {
			return "", taskset.IOError("probe rotation target for spec "+spec, err)
		}
	}
	if err := os.Rename(live, target); err != nil {
		return "", taskset.IOError("rotate event log for spec "+spec, err)
	}
	s.logger.Info("rotated event log for spec %s to %s (%s)",
		spec, filepath.Base(target), humanize.Bytes(uint64(info.Size())))
	return target, nil
}
