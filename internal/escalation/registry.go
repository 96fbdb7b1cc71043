// Package escalation tracks help requests awaiting a human supervisor and
// delivers resolved answers back to users.
package escalation

import (
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/frontdesk/internal/storage"
)

// Registry owns the help-request lifecycle: id allocation, the durable
// request log, and the per-user notification mailbox. All state lives
// behind the registry; there are no package-level maps.
//
// Ids start at 1, strictly increase, and are never reused: not after a
// delete, and not across restarts (the counter is re-seeded from the
// highest id ever issued, which deletes do not lower). A create that
// fails at the insert burns its id.
type Registry struct {
	store *storage.Store

	mu     sync.Mutex
	nextID int64
	// mailbox holds at most one refined answer per user. A second
	// resolution for the same user before the first poll overwrites the
	// earlier one (last-write-wins); single active session per user is
	// the expected usage.
	mailbox map[string]string
}

// NewRegistry creates a Registry over the given store, seeding the id
// counter from the highest id ever issued.
func NewRegistry(store *storage.Store) (*Registry, error) {
	lastID, err := store.HighestIssuedHelpRequestID()
	if err != nil {
		return nil, fmt.Errorf("seeding request id counter: %w", err)
	}
	return &Registry{
		store:   store,
		nextID:  lastID + 1,
		mailbox: make(map[string]string),
	}, nil
}

// Create logs a new pending request and returns its id. Safe for
// concurrent use: no two calls observe the same id.
func (r *Registry) Create(userID, question string) (int64, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.mu.Unlock()

	req := storage.HelpRequest{
		ID:        id,
		UserID:    userID,
		Question:  question,
		Status:    storage.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertHelpRequest(req); err != nil {
		return 0, err
	}
	return id, nil
}

// Resolve transitions a pending request to resolved, records the raw
// supervisor answer, and returns the updated request. Unknown, deleted,
// or already-resolved ids report storage.ErrNotFound. The refined answer
// is attached separately via SetRefined so a refinement failure can't
// corrupt the resolution.
func (r *Registry) Resolve(id int64, rawAnswer string) (storage.HelpRequest, error) {
	return r.store.ResolveHelpRequest(id, rawAnswer, time.Now().UTC())
}

// SetRefined attaches the polished answer to an already-resolved request.
func (r *Registry) SetRefined(id int64, refined string) error {
	return r.store.SetRefinedAnswer(id, refined)
}

// ListPending returns all pending requests in ascending id order.
func (r *Registry) ListPending() ([]storage.HelpRequest, error) {
	return r.store.ListHelpRequests(storage.StatusPending)
}

// Delete removes a request regardless of status. Its id is never reissued.
func (r *Registry) Delete(id int64) error {
	return r.store.DeleteHelpRequest(id)
}

// PublishNotification queues a refined answer for the user, replacing any
// unread one.
func (r *Registry) PublishNotification(userID, refinedAnswer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailbox[userID] = refinedAnswer
}

// ConsumeNotification pops the pending notification for the user, if any.
// Reading removes it: each notification is delivered exactly once.
func (r *Registry) ConsumeNotification(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	answer, ok := r.mailbox[userID]
	if ok {
		delete(r.mailbox, userID)
	}
	return answer, ok
}
