package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
)

// ErrorsBucket is the reserved group for pages whose latest capture failed.
const ErrorsBucket = "errors"

// GroupSeparator joins the per-prefix segments of a group key.
const GroupSeparator = "--"

// GroupKey derives a page's group from its tag names. For each prefix, in
// order, the first tag starting with it contributes the remainder of the
// tag name; a tag equal to the prefix contributes the whole name. Unmatched
// prefixes contribute an empty segment.
func GroupKey(tags []string, prefixes []string) string {
	segments := make([]string, len(prefixes))
	for i, prefix := range prefixes {
		for _, tag := range tags {
			if !strings.HasPrefix(tag, prefix) {
				continue
			}
			if tag == prefix {
				segments[i] = tag
			} else {
				segments[i] = tag[len(prefix):]
			}
			break
		}
	}
	return strings.Join(segments, GroupSeparator)
}

// Bucket is a set of pages. Membership is by page instance, so a page and
// its error-fallback copy are distinct members.
type Bucket struct {
	members map[*monitoring.Page]struct{}
}

func newBucket() *Bucket {
	return &Bucket{members: make(map[*monitoring.Page]struct{})}
}

// Add inserts p and reports whether it was not already present.
func (b *Bucket) Add(p *monitoring.Page) bool {
	if _, ok := b.members[p]; ok {
		return false
	}
	b.members[p] = struct{}{}
	return true
}

// Contains reports whether p is a member.
func (b *Bucket) Contains(p *monitoring.Page) bool {
	_, ok := b.members[p]
	return ok
}

// Len returns the number of members.
func (b *Bucket) Len() int {
	return len(b.members)
}

// Pages lists the members ordered by URL, then uuid, then capture time of
// the latest version.
func (b *Bucket) Pages() []*monitoring.Page {
	pages := make([]*monitoring.Page, 0, len(b.members))
	for p := range b.members {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool {
		a, c := pages[i], pages[j]
		if a.URL != c.URL {
			return a.URL < c.URL
		}
		if a.UUID != c.UUID {
			return a.UUID < c.UUID
		}
		return latestTime(a).Before(latestTime(c))
	})
	return pages
}

// Buckets maps group keys to page sets. Buckets are created on first access.
type Buckets struct {
	groups map[string]*Bucket
}

// NewBuckets returns an empty mapping.
func NewBuckets() *Buckets {
	return &Buckets{groups: make(map[string]*Bucket)}
}

// Bucket returns the bucket for key, creating it if needed.
func (b *Buckets) Bucket(key string) *Bucket {
	bucket, ok := b.groups[key]
	if !ok {
		bucket = newBucket()
		b.groups[key] = bucket
	}
	return bucket
}

// Get returns the bucket for key without creating it.
func (b *Buckets) Get(key string) (*Bucket, bool) {
	bucket, ok := b.groups[key]
	return bucket, ok
}

// Keys returns the group keys in ascending order.
func (b *Buckets) Keys() []string {
	keys := make([]string, 0, len(b.groups))
	for k := range b.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of groups.
func (b *Buckets) Len() int {
	return len(b.groups)
}

func latestTime(p *monitoring.Page) time.Time {
	if p.Latest != nil {
		return p.Latest.CaptureTime
	}
	return time.Time{}
}
