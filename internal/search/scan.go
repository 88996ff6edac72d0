package search

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"dindintalk/api/internal/treedb"
)

// TreeScan answers searches by scanning the post collection directly.
// Substring match only; good enough as a degraded mode.
type TreeScan struct {
	db treedb.Store
}

func NewTreeScan(db treedb.Store) *TreeScan {
	return &TreeScan{db: db}
}

// Healthy always reports true; the scan is as available as the store itself.
func (s *TreeScan) Healthy() bool { return true }

func (s *TreeScan) Search(q Query) ([]PostRecord, int, error) {
	children, err := s.db.Children(context.Background(), "posts")
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	var matches []PostRecord
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var p PostRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		p.Key = key
		if needle == "" || strings.Contains(strings.ToLower(p.Text), needle) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PostID > matches[j].PostID })

	total := len(matches)
	if q.Offset > 0 {
		if q.Offset >= len(matches) {
			matches = nil
		} else {
			matches = matches[q.Offset:]
		}
	}
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}
