package app

import (
	"context"
	"encoding/json"
	"sort"

	"dindintalk/api/internal/treedb"
)

func (s *Service) ListReports(ctx context.Context) ([]Report, error) {
	children, err := s.db.Children(ctx, "reports")
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(children))
	for _, raw := range children {
		if raw == nil {
			continue
		}
		var report Report
		if err := json.Unmarshal(raw, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		return nil, errNotFound("No reports found")
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Datetime < reports[j].Datetime })
	return reports, nil
}

type ReportInput struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

func (s *Service) ReportPost(ctx context.Context, session Session, postID int64, in ReportInput) (Report, error) {
	_, post, err := s.findPostByID(ctx, postID)
	if err != nil {
		return Report{}, err
	}
	if post.AuthorID == session.UserID {
		return Report{}, errForbidden("You cannot report your own post")
	}

	children, err := s.db.Children(ctx, "reports")
	if err != nil {
		return Report{}, err
	}
	for _, raw := range children {
		if raw == nil {
			continue
		}
		var existing Report
		if err := json.Unmarshal(raw, &existing); err != nil {
			continue
		}
		if existing.PostID == postID && existing.ReportedBy == session.UserID {
			return Report{}, errConflict("ALREADY_REPORTED", "You have already reported this post")
		}
	}

	if in.Reason == "" {
		in.Reason = "No reason provided"
	}
	key := treedb.NewKey()
	report := Report{
		ReportID:   key,
		PostID:     postID,
		ReportedBy: session.UserID,
		Reason:     in.Reason,
		Details:    in.Details,
		Datetime:   s.timestamp(),
	}
	if err := s.db.Set(ctx, treedb.Join("reports", key), report); err != nil {
		return Report{}, err
	}
	return report, nil
}
