package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Category classifies a telemetry item for rate-limiting purposes.
type Category string

// Known categories. Servers may send tokens outside this list; they are
// tracked verbatim. The empty string is a valid, distinct category key.
const (
	CategoryError       Category = "error"
	CategoryTransaction Category = "transaction"
	CategorySession     Category = "session"
	CategoryAttachment  Category = "attachment"
)

const (
	// Header carrying backoff directives on collector responses.
	Header = "X-Faultline-Rate-Limits"

	// RetryAfterHeader is consulted on a 429 without explicit directives.
	RetryAfterHeader = "Retry-After"

	defaultRetryAfter = 60 * time.Second
)

// Entry is one parsed directive: a category (or a blanket "all categories"
// marker) disabled until a point in time.
type Entry struct {
	All      bool
	Category Category
	Until    time.Time
}

// Parse extracts rate-limit entries from a directive header value.
//
// Entries that are empty after trimming or whose retry-after field does not
// parse as a non-negative number of seconds are skipped. A missing or empty
// categories field yields a single blanket entry; a ;-separated list yields
// one entry per token, empty tokens included (an empty token is a literal
// category key, not a blanket limit).
func Parse(header string, now time.Time) []Entry {
	var entries []Entry
	for _, limit := range strings.Split(header, ",") {
		limit = strings.TrimSpace(limit)
		if limit == "" {
			continue
		}

		fields := strings.SplitN(limit, ":", 4)
		seconds, err := strconv.Atoi(fields[0])
		if err != nil || seconds < 0 {
			continue
		}
		until := now.Add(time.Duration(seconds) * time.Second)

		if len(fields) < 2 || fields[1] == "" {
			entries = append(entries, Entry{All: true, Until: until})
			continue
		}
		for _, category := range strings.Split(fields[1], ";") {
			entries = append(entries, Entry{Category: Category(category), Until: until})
		}
	}
	return entries
}

// Limits tracks the currently-active backoff state. Reads happen on every
// capture; writes happen only when the sender processes a response, so a
// read-write mutex around plain maps is sufficient.
type Limits struct {
	mu         sync.RWMutex
	all        time.Time
	categories map[Category]time.Time
}

// NewLimits creates an empty limiter.
func NewLimits() *Limits {
	return &Limits{
		categories: make(map[Category]time.Time),
	}
}

// IsDisabled reports whether the category is currently rate limited, either
// by an explicit entry or by an active blanket limit.
func (l *Limits) IsDisabled(category Category, now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.all.After(now) {
		return true
	}
	return l.categories[category].After(now)
}

// Merge applies parsed entries. A newer entry replaces any existing entry for
// the same key even if its expiry is earlier.
func (l *Limits) Merge(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range entries {
		if entry.All {
			l.all = entry.Until
		} else {
			l.categories[entry.Category] = entry.Until
		}
	}
}

// ApplyResponse updates the limiter from a collector response. Directive
// headers are honored on every status code. A 429 without directives applies
// a blanket limit for the Retry-After duration, defaulting to 60 seconds.
func (l *Limits) ApplyResponse(statusCode int, header http.Header, now time.Time) {
	if directives := header.Get(Header); directives != "" {
		l.Merge(Parse(directives, now))
		return
	}

	if statusCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		if value := header.Get(RetryAfterHeader); value != "" {
			if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds >= 0 {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		l.Merge([]Entry{{All: true, Until: now.Add(retryAfter)}})
	}
}
