package scheduler

import (
	"fmt"
	"sync"
)

// claim records who currently holds a path and whether the hold is exclusive.
type claim struct {
	ownerAgentID string
	taskID       string
	exclusive    bool
}

// FileClaims is a ledger mapping file paths to their current claimant. A
// write claim is exclusive: no other claim (read or write) may coexist on
// the same path. Read claims are compatible with other read claims but not
// with a write claim.
type FileClaims struct {
	mu     sync.Mutex
	claims map[string][]claim
}

// NewFileClaims returns an empty ledger.
func NewFileClaims() *FileClaims {
	return &FileClaims{claims: make(map[string][]claim)}
}

// Claim attempts to claim path for (ownerAgentID, taskID). write requests an
// exclusive claim; a non-write (read) claim only conflicts with an existing
// write claim on the same path. It returns an error describing the
// conflicting owner if the claim cannot be granted.
func (f *FileClaims) Claim(path, ownerAgentID, taskID string, write bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.claims[path]
	for _, c := range existing {
		if write || c.exclusive {
			return fmt.Errorf("scheduler: path %q already claimed by task %q (agent %q)", path, c.taskID, c.ownerAgentID)
		}
	}
	f.claims[path] = append(existing, claim{ownerAgentID: ownerAgentID, taskID: taskID, exclusive: write})
	return nil
}

// Release removes taskID's claim on path. It is a no-op if no such claim exists.
func (f *FileClaims) Release(path, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.claims[path]
	out := existing[:0]
	for _, c := range existing {
		if c.taskID != taskID {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(f.claims, path)
	} else {
		f.claims[path] = out
	}
}

// ReleaseAll releases every claim held by taskID, across all paths. Callers
// should defer this immediately after a successful ClaimAll so a task's
// claims are always released even if the task's work panics or errors.
func (f *FileClaims) ReleaseAll(taskID string, paths []string) {
	for _, p := range paths {
		f.Release(p, taskID)
	}
}

// ClaimAll claims every path in writes (exclusive) and reads (shared) for
// one task, rolling back any partial claims if one of them conflicts.
func (f *FileClaims) ClaimAll(ownerAgentID, taskID string, writes, reads []string) error {
	claimed := make([]string, 0, len(writes)+len(reads))
	rollback := func() {
		for _, p := range claimed {
			f.Release(p, taskID)
		}
	}

	for _, p := range writes {
		if err := f.Claim(p, ownerAgentID, taskID, true); err != nil {
			rollback()
			return err
		}
		claimed = append(claimed, p)
	}
	for _, p := range reads {
		if err := f.Claim(p, ownerAgentID, taskID, false); err != nil {
			rollback()
			return err
		}
		claimed = append(claimed, p)
	}
	return nil
}

// HasConflict reports whether two nodes' file footprints would conflict if
// run concurrently: any overlap where at least one side writes the path.
// This backs the optional, non-blocking parallel-safety check a caller may
// run over a ready batch before dispatching it.
func HasConflict(a, b *Node) bool {
	aWrites := toSet(a.TargetFiles)
	bWrites := toSet(b.TargetFiles)
	aReads := toSet(a.ReadFiles)
	bReads := toSet(b.ReadFiles)

	for p := range aWrites {
		if bWrites[p] || bReads[p] {
			return true
		}
	}
	for p := range bWrites {
		if aWrites[p] || aReads[p] {
			return true
		}
	}
	return false
}

func toSet(paths []string) map[string]bool {
	s := make(map[string]bool, len(paths))
	for _, p := range paths {
		s[p] = true
	}
	return s
}
