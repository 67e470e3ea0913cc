// Package presence maintains the replicated "who's online" map for one
// room from an initial full snapshot plus a stream of incremental diffs.
//
// Diffs must be applied in arrival order. The transport guarantees
// per-connection FIFO delivery; this package depends on that and does not
// verify it.
package presence

import (
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/andrewlidong/beam-messenger/pkg/models"
)

// Entry is one row of the derived roster listing.
type Entry struct {
	// ID is the user ID keying the presence map.
	ID string

	// Username is the display name from the user's first meta.
	Username string

	// Count is the number of active connections the user has open.
	Count int

	// Status is the presence status from the first meta; "online" when
	// the meta carries none.
	Status string
}

// Presence is the canonical presence map for one room. Metas are tracked
// individually per connection; a user disappears only when the leave for
// their last meta arrives.
type Presence struct {
	mu       sync.Mutex
	state    map[string][]models.Meta
	onSync   []func()
	collator *collate.Collator
}

// New creates an empty presence map. The locale tag drives the username
// collation in List; an empty or invalid tag falls back to the
// language-neutral ordering.
func New(locale string) *Presence {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return &Presence{
		state:    make(map[string][]models.Meta),
		collator: collate.New(tag),
	}
}

// OnSync registers an observer invoked synchronously after every completed
// state replacement or diff merge. Observers never see a partially applied
// diff.
func (p *Presence) OnSync(fn func()) {
	p.mu.Lock()
	p.onSync = append(p.onSync, fn)
	p.mu.Unlock()
}

// SyncState replaces the entire presence map with the given snapshot.
// It is used once on the initial snapshot after join, and again whenever
// the server resends state after a reconnect.
func (p *Presence) SyncState(state models.PresenceState) {
	p.mu.Lock()
	fresh := make(map[string][]models.Meta, len(state))
	for id, list := range state {
		if len(list.Metas) == 0 {
			continue
		}
		metas := make([]models.Meta, len(list.Metas))
		copy(metas, list.Metas)
		fresh[id] = metas
	}
	p.state = fresh
	p.mu.Unlock()

	p.notifySync()
}

// SyncDiff merges an incremental diff: joined metas are appended to their
// user's sequence (creating the key if absent) and left metas are removed
// by connection ref. A join carrying no metas is ignored, so a present key
// always holds at least one meta. Removing a user's last meta removes the
// user. A leave
// for an unknown user or ref is tolerated as a no-op, since a diff can
// race with a late-arriving full snapshot.
func (p *Presence) SyncDiff(diff models.PresenceDiff) {
	p.mu.Lock()
	for id, list := range diff.Joins {
		if len(list.Metas) == 0 {
			continue
		}
		p.state[id] = append(p.state[id], list.Metas...)
	}
	for id, list := range diff.Leaves {
		current, ok := p.state[id]
		if !ok {
			continue
		}
		for _, gone := range list.Metas {
			current = removeByRef(current, gone.Ref)
		}
		if len(current) == 0 {
			delete(p.state, id)
		} else {
			p.state[id] = current
		}
	}
	p.mu.Unlock()

	p.notifySync()
}

// List derives the roster: one entry per user, connection count, and the
// first meta's username and status. Entries are sorted by username with
// locale-aware comparison, ties broken by user ID. List mutates nothing;
// calling it twice without an intervening sync yields identical output.
func (p *Presence) List() []Entry {
	p.mu.Lock()
	entries := make([]Entry, 0, len(p.state))
	for id, metas := range p.state {
		if len(metas) == 0 {
			continue
		}
		first := metas[0]
		username := first.Username
		if username == "" {
			username = id
		}
		status := first.Status
		if status == "" {
			status = models.StatusOnline
		}
		entries = append(entries, Entry{
			ID:       id,
			Username: username,
			Count:    len(metas),
			Status:   status,
		})
	}

	// The collator buffers state between comparisons, so sorting stays
	// under the lock.
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := p.collator.CompareString(entries[i].Username, entries[j].Username); cmp != 0 {
			return cmp < 0
		}
		return entries[i].ID < entries[j].ID
	})
	p.mu.Unlock()
	return entries
}

// UsernameByID resolves a user's display name from their first meta.
func (p *Presence) UsernameByID(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	metas, ok := p.state[id]
	if !ok || len(metas) == 0 {
		return "", false
	}
	return metas[0].Username, true
}

// AnyoneTypingExcept reports whether any meta other than selfID's is
// currently typing. The shared typing indicator is derived from this.
func (p *Presence) AnyoneTypingExcept(selfID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, metas := range p.state {
		if id == selfID {
			continue
		}
		for _, meta := range metas {
			if meta.Typing {
				return true
			}
		}
	}
	return false
}

// Size returns the number of distinct users present.
func (p *Presence) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.state)
}

func (p *Presence) notifySync() {
	p.mu.Lock()
	observers := make([]func(), len(p.onSync))
	copy(observers, p.onSync)
	p.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// removeByRef drops the first meta whose ref matches. Refs identify
// connections, so value-identical metas from multiple tabs never collide.
func removeByRef(metas []models.Meta, ref string) []models.Meta {
	for i, meta := range metas {
		if meta.Ref == ref {
			return append(metas[:i:i], metas[i+1:]...)
		}
	}
	return metas
}
