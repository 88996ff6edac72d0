package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to a
// tree scan.
type Service struct {
	meili *Meili
	scan  *TreeScan
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, scan *TreeScan) *Service {
	return &Service{meili: meili, scan: scan}
}

// Search tries Meilisearch if healthy, otherwise scans the post tree.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to scan: %v", err)
	}

	results, total, err := s.scan.Search(q)
	if err != nil {
		log.Printf("search: scan error: %v", err)
		return Response{Results: []PostRecord{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPost indexes a post (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(p PostRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPost(p); err != nil {
			log.Printf("search: index post %s: %v", p.Key, err)
		}
	}()
}

// DeletePost removes a post from the index (fire-and-forget).
func (s *Service) DeletePost(key string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(key); err != nil {
			log.Printf("search: delete post %s: %v", key, err)
		}
	}()
}

func nonNil(results []PostRecord) []PostRecord {
	if results == nil {
		return []PostRecord{}
	}
	return results
}
