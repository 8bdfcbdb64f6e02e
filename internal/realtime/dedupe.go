package realtime

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/trade-hub/trade-hub/internal/domain/event"
)

const defaultDedupeSize = 1024

// Deduper remembers recently applied events so redeliveries can be ignored.
// Two events of the same type about the same room with equal (createdAt, fromParty) are the
// same event.
type Deduper struct {
	seen *lru.Cache
}

func NewDeduper(size int) *Deduper {
	if size <= 0 {
		size = defaultDedupeSize
	}
	cache, err := lru.New(size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Deduper{seen: cache}
}

// Seen records ev and reports whether it had already been recorded.
func (d *Deduper) Seen(ev event.Event) bool {
	found, _ := d.seen.ContainsOrAdd(string(ev.Type)+"#"+ev.RoomOf()+"#"+ev.DedupeKey(), struct{}{})
	return found
}

func (d *Deduper) Len() int {
	return d.seen.Len()
}
