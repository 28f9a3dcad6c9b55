// Session store with per-session single-writer leases.
//
// Information Hiding:
// - Session map and lazy loading hidden
// - Writer exclusion (one slot per session) hidden behind Lease
// - Write-through to the persistent backend hidden

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/toolthread/internal/observability"
	"github.com/richinex/toolthread/model"
)

var (
	// ErrEmptySessionID is returned for a blank session id.
	ErrEmptySessionID = errors.New("session id cannot be empty")

	// ErrLeaseReleased is returned when committing through a released lease.
	ErrLeaseReleased = errors.New("session lease already released")
)

type session struct {
	// slot holds one token while a writer owns the session.
	slot chan struct{}

	mu         sync.RWMutex
	loaded     bool
	deleted    bool
	transcript *model.Transcript
	values     model.Values
}

func newSession() *session {
	return &session{
		slot:       make(chan struct{}, 1),
		transcript: model.NewTranscript(),
		values:     model.Values{},
	}
}

// SessionStore holds every session's transcript and context bag. At most one
// writer per session at a time; different sessions proceed in parallel.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	backend  ConversationStorage
	metrics  *observability.Metrics
}

// NewSessionStore creates a store. backend may be nil, in which case state
// lives only in process memory.
func NewSessionStore(backend ConversationStorage) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
		backend:  backend,
	}
}

// WithMetrics sets the metrics sink.
func (s *SessionStore) WithMetrics(metrics *observability.Metrics) *SessionStore {
	s.metrics = metrics
	return s
}

func (s *SessionStore) entry(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession()
		s.sessions[id] = sess
		s.metrics.SessionsActive(len(s.sessions))
	}
	return sess
}

// Acquire takes the writer slot for id, creating the session on first use.
// It blocks while another lease on the same session is held and returns
// ctx.Err() if ctx ends first.
func (s *SessionStore) Acquire(ctx context.Context, id string) (*Lease, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	for {
		sess := s.entry(id)

		select {
		case sess.slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		sess.mu.RLock()
		deleted := sess.deleted
		sess.mu.RUnlock()
		if deleted {
			// Deleted while we waited; retry against the fresh entry.
			<-sess.slot
			continue
		}

		if err := s.load(ctx, id, sess); err != nil {
			<-sess.slot
			return nil, err
		}
		return &Lease{store: s, id: id, sess: sess}, nil
	}
}

// load fills a fresh session from the backend. Callers hold the slot.
func (s *SessionStore) load(ctx context.Context, id string, sess *session) error {
	sess.mu.RLock()
	loaded := sess.loaded
	sess.mu.RUnlock()
	if loaded {
		return nil
	}

	transcript := model.NewTranscript()
	values := model.Values{}
	if s.backend != nil {
		snapshot, err := s.backend.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
		transcript, err = model.RestoreTranscript(snapshot.Turns)
		if err != nil {
			return fmt.Errorf("restore session %s: %w", id, err)
		}
		values = snapshot.Values.Clone()
	}

	sess.mu.Lock()
	sess.transcript = transcript
	sess.values = values
	sess.loaded = true
	sess.mu.Unlock()
	return nil
}

// Reset clears the transcript of id and replaces its context bag, waiting
// for any in-flight writer.
func (s *SessionStore) Reset(ctx context.Context, id string, values model.Values) error {
	lease, err := s.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer lease.Release()

	return lease.Commit(ctx, model.NewTranscript(), values)
}

// Delete removes id from memory and the backend, waiting for any in-flight
// writer.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	lease, err := s.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer lease.Release()

	if s.backend != nil {
		if err := s.backend.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}

	lease.sess.mu.Lock()
	lease.sess.deleted = true
	lease.sess.mu.Unlock()

	s.mu.Lock()
	if s.sessions[id] == lease.sess {
		delete(s.sessions, id)
	}
	s.metrics.SessionsActive(len(s.sessions))
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the committed state of id as held in memory.
func (s *SessionStore) Snapshot(id string) (Snapshot, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return Snapshot{
		Turns:  sess.transcript.Turns(),
		Values: sess.values.Clone(),
	}, true
}

// Read returns a copy of the committed state of id, waiting for a writer in
// flight. A session that exists neither in memory nor in the backend reads
// as empty and is not created.
func (s *SessionStore) Read(ctx context.Context, id string) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, ErrEmptySessionID
	}

	s.mu.Lock()
	_, known := s.sessions[id]
	s.mu.Unlock()
	if !known {
		if s.backend == nil {
			return Snapshot{}, nil
		}
		exists, err := s.backend.Exists(ctx, id)
		if err != nil {
			return Snapshot{}, fmt.Errorf("check session %s: %w", id, err)
		}
		if !exists {
			return Snapshot{}, nil
		}
	}

	lease, err := s.Acquire(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	defer lease.Release()

	lease.sess.mu.RLock()
	defer lease.sess.mu.RUnlock()
	return Snapshot{
		Turns:  lease.sess.transcript.Turns(),
		Values: lease.sess.values.Clone(),
	}, nil
}

// Sessions returns the ids of sessions held in memory, sorted.
func (s *SessionStore) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lease is exclusive write access to one session. Release it when done.
type Lease struct {
	store *SessionStore
	id    string
	sess  *session

	once     sync.Once
	mu       sync.Mutex
	released bool
}

// SessionID returns the id of the leased session.
func (l *Lease) SessionID() string {
	return l.id
}

// Transcript returns a copy of the committed transcript.
func (l *Lease) Transcript() *model.Transcript {
	l.sess.mu.RLock()
	defer l.sess.mu.RUnlock()
	return l.sess.transcript.Clone()
}

// Values returns a copy of the committed context bag.
func (l *Lease) Values() model.Values {
	l.sess.mu.RLock()
	defer l.sess.mu.RUnlock()
	return l.sess.values.Clone()
}

// Commit replaces the session's state. The backend is written first; if
// that fails the in-memory state is left untouched.
func (l *Lease) Commit(ctx context.Context, transcript *model.Transcript, values model.Values) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLeaseReleased
	}

	if backend := l.store.backend; backend != nil {
		snapshot := Snapshot{Turns: transcript.Turns(), Values: values.Clone()}
		if err := backend.Save(ctx, l.id, snapshot); err != nil {
			return fmt.Errorf("save session %s: %w", l.id, err)
		}
	}

	l.sess.mu.Lock()
	l.sess.transcript = transcript.Clone()
	l.sess.values = values.Clone()
	l.sess.mu.Unlock()
	return nil
}

// Release gives up the writer slot. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()
		<-l.sess.slot
	})
}
