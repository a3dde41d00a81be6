package session

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"identity-forge/internal/portrait"
)

// Session is one user's working state: the uploaded portrait and every
// result generated from it so far.
type Session struct {
	ID         string
	Image      *portrait.Image
	Results    portrait.Results
	Generating bool
	// Epoch advances on every Reset. A batch records it before starting so
	// its results can be dropped if the session was cleared meanwhile.
	Epoch     uint64
	UpdatedAt time.Time
}

type Options struct {
	// TTL is how long an idle session is kept.
	TTL time.Duration
}

type Store struct {
	mu    sync.Mutex
	items *cache.Cache
	ttl   time.Duration
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Store{
		items: cache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookupLocked(id)
	if !ok {
		return Session{}, false
	}
	s.items.Set(id, sess, s.ttl)
	return snapshot(sess), true
}

// SetImage replaces the session's portrait. Earlier results are kept until
// Reset.
func (s *Store) SetImage(id string, img portrait.Image) Session {
	return s.update(id, func(sess *Session) {
		cp := portrait.Image{Data: append([]byte(nil), img.Data...), MIMEType: img.MIMEType}
		sess.Image = &cp
	})
}

// Merge folds a batch result into the session; shared keys take the new value.
func (s *Store) Merge(id string, results portrait.Results) Session {
	return s.update(id, func(sess *Session) {
		sess.Results = portrait.Merge(sess.Results, results)
	})
}

// MergeAt merges results only while the session is still at epoch. It
// reports false, leaving the session untouched, after an intervening Reset.
func (s *Store) MergeAt(id string, epoch uint64, results portrait.Results) (Session, bool) {
	merged := false
	sess := s.update(id, func(sess *Session) {
		if sess.Epoch != epoch {
			return
		}
		sess.Results = portrait.Merge(sess.Results, results)
		merged = true
	})
	return sess, merged
}

func (s *Store) Reset(id string) Session {
	return s.update(id, func(sess *Session) {
		sess.Image = nil
		sess.Results = portrait.Results{}
		sess.Epoch++
	})
}

// Begin marks a batch as running. It reports false when one already is.
func (s *Store) Begin(id string) bool {
	started := false
	s.update(id, func(sess *Session) {
		if sess.Generating {
			return
		}
		sess.Generating = true
		started = true
	})
	return started
}

func (s *Store) End(id string) {
	s.update(id, func(sess *Session) { sess.Generating = false })
}

func (s *Store) update(id string, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	if fn != nil {
		fn(sess)
	}
	sess.UpdatedAt = time.Now()
	s.items.Set(id, sess, s.ttl)
	return snapshot(sess)
}

func (s *Store) lookupLocked(id string) (*Session, bool) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}

func (s *Store) getOrCreateLocked(id string) *Session {
	if sess, ok := s.lookupLocked(id); ok {
		return sess
	}
	return &Session{
		ID:        id,
		Results:   portrait.Results{},
		UpdatedAt: time.Now(),
	}
}

func snapshot(sess *Session) Session {
	out := *sess
	out.Results = sess.Results.Clone()
	if sess.Image != nil {
		img := *sess.Image
		out.Image = &img
	}
	return out
}
