// Package album folds Telegram media groups into a single event. Telegram
// delivers each photo of an album as its own update, sharing a media group id.
package album

import (
	"slices"
	"strconv"
	"sync"
	"time"
)

const defaultQuiet = 1200 * time.Millisecond

type Photo struct {
	ChatID int64
	// MessageID orders photos within the album. Updates may be handled
	// concurrently, so Add calls do not arrive in message order.
	MessageID int
	GroupID   string
	FileID    string
}

// Album is every photo collected for one media group, in message order.
type Album struct {
	ChatID  int64
	FileIDs []string
}

type Options struct {
	// Quiet is how long the collector waits after the last photo before the
	// album is considered complete.
	Quiet   time.Duration
	OnAlbum func(Album)
}

type Collector struct {
	mu      sync.Mutex
	quiet   time.Duration
	onAlbum func(Album)
	pending map[string]*pending
}

type pending struct {
	chatID int64
	photos []Photo
	timer  *time.Timer
}

func New(opts Options) *Collector {
	quiet := opts.Quiet
	if quiet <= 0 {
		quiet = defaultQuiet
	}

	return &Collector{
		quiet:   quiet,
		onAlbum: opts.OnAlbum,
		pending: make(map[string]*pending),
	}
}

// Add records one photo and restarts the quiet timer of its album. Photos
// without a group id are ignored.
func (c *Collector) Add(p Photo) {
	if p.GroupID == "" || p.FileID == "" {
		return
	}

	key := strconv.FormatInt(p.ChatID, 10) + ":" + p.GroupID

	c.mu.Lock()
	defer c.mu.Unlock()

	pg, ok := c.pending[key]
	if !ok {
		pg = &pending{chatID: p.ChatID}
		c.pending[key] = pg
	}
	pg.photos = append(pg.photos, p)

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(c.quiet, func() { c.complete(key) })
}

// Pending reports how many albums are still collecting.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Collector) complete(key string) {
	c.mu.Lock()
	pg, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	onAlbum := c.onAlbum
	c.mu.Unlock()

	if onAlbum != nil {
		onAlbum(pg.album())
	}
}

func (pg *pending) album() Album {
	photos := slices.Clone(pg.photos)
	slices.SortStableFunc(photos, func(a, b Photo) int { return a.MessageID - b.MessageID })

	a := Album{ChatID: pg.chatID, FileIDs: make([]string, 0, len(photos))}
	for _, p := range photos {
		a.FileIDs = append(a.FileIDs, p.FileID)
	}
	return a
}
