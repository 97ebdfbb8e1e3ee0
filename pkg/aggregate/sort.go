package aggregate

import (
	"sort"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
)

// Row is one report line: a page, the capture that represents it and the
// annotation merged over its version chain.
type Row struct {
	Page       *monitoring.Page   `json:"page"`
	Version    monitoring.Version `json:"version"`
	Annotation Annotation         `json:"annotation"`
}

func priorityOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

type cluster struct {
	hash  string
	score float64
	rows  []Row
}

// Sort orders rows for the report and returns a new slice.
//
// Rows sharing a text diff hash form a cluster scored by its highest
// priority. Clusters are ordered by score, highest first, then by hash.
// Inside a cluster rows are ordered by source diff hash, then priority
// (highest first), then capture time, page URL and version uuid. The result
// does not depend on the input order.
func Sort(rows []Row) []Row {
	byHash := make(map[string]*cluster)
	for _, r := range rows {
		h := r.Annotation.TextDiffHash
		p := priorityOrZero(r.Annotation.Priority)
		c, ok := byHash[h]
		if !ok {
			c = &cluster{hash: h, score: p}
			byHash[h] = c
		}
		c.rows = append(c.rows, r)
		c.score = max(c.score, p)
	}

	clusters := make([]*cluster, 0, len(byHash))
	for _, c := range byHash {
		sort.Slice(c.rows, func(i, j int) bool { return rowLess(c.rows[i], c.rows[j]) })
		clusters = append(clusters, c)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].score != clusters[j].score {
			return clusters[i].score > clusters[j].score
		}
		return clusters[i].hash < clusters[j].hash
	})

	out := make([]Row, 0, len(rows))
	for _, c := range clusters {
		out = append(out, c.rows...)
	}
	return out
}

func rowLess(a, b Row) bool {
	if a.Annotation.SourceDiffHash != b.Annotation.SourceDiffHash {
		return a.Annotation.SourceDiffHash < b.Annotation.SourceDiffHash
	}
	pa, pb := priorityOrZero(a.Annotation.Priority), priorityOrZero(b.Annotation.Priority)
	if pa != pb {
		return pa > pb
	}
	if !a.Version.CaptureTime.Equal(b.Version.CaptureTime) {
		return a.Version.CaptureTime.Before(b.Version.CaptureTime)
	}
	if ua, ub := pageURL(a), pageURL(b); ua != ub {
		return ua < ub
	}
	return a.Version.UUID < b.Version.UUID
}

func pageURL(r Row) string {
	if r.Page == nil {
		return ""
	}
	return r.Page.URL
}
