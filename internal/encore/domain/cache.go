package domain

import "time"

// CacheKey identifies one cached upstream list.
type CacheKey struct {
	AccountID string
	Kind      string // top_tracks, top_artists, recently_played
	TimeRange string // empty for kinds without one
}

func (k CacheKey) String() string {
	return k.AccountID + ":" + k.Kind + ":" + k.TimeRange
}

// CacheEntry is a stored upstream response. Payload is the JSON-encoded item
// list; ItemCount lets a reader decide whether the entry can serve a request
// without decoding it.
type CacheEntry struct {
	Key       CacheKey
	Payload   []byte
	ItemCount int
	UpdatedAt time.Time
}
