package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"dindintalk/api/internal/rbac"
	"dindintalk/api/internal/treedb"
)

func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	children, err := s.db.Children(ctx, "events")
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(children))
	for _, raw := range children {
		if raw == nil {
			continue
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].EventID < events[j].EventID })
	return events, nil
}

type CreateEventInput struct {
	Title       string
	Description string
	StartDate   string
	EndDate     string
	Location    string
	Image       string
}

func (s *Service) CreateEvent(ctx context.Context, session Session, in CreateEventInput) (Event, error) {
	if !rbac.CanManageEvents(session.Role) {
		return Event{}, errForbidden("Not allowed to create events")
	}
	if in.Title == "" || in.StartDate == "" || in.EndDate == "" || in.Location == "" {
		return Event{}, errValidation("title, startDate, endDate, location required")
	}

	eventID, err := s.nextID(ctx, eventCounter)
	if err != nil {
		return Event{}, err
	}

	event := Event{
		EventID:     eventID,
		Title:       in.Title,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Location:    in.Location,
		Image:       in.Image,
		CreatedBy:   session.UserID,
		CreatedAt:   s.timestamp(),
	}
	if err := s.db.Set(ctx, s.eventPath(eventID), event); err != nil {
		return Event{}, err
	}
	return event, nil
}

type UpdateEventInput struct {
	Title       *string
	Description *string
	StartDate   *string
	EndDate     *string
	Location    *string
	Image       ImagePatch
}

func (s *Service) UpdateEvent(ctx context.Context, session Session, eventID int64, in UpdateEventInput) (Event, error) {
	if !rbac.CanManageEvents(session.Role) {
		return Event{}, errForbidden("Not allowed to update this event")
	}

	var event Event
	if err := s.db.Get(ctx, s.eventPath(eventID), &event); err != nil {
		if errors.Is(err, treedb.ErrNotFound) {
			return Event{}, errNotFound("Event not found")
		}
		return Event{}, err
	}

	if in.Title != nil {
		event.Title = *in.Title
	}
	if in.Description != nil {
		event.Description = *in.Description
	}
	if in.StartDate != nil {
		event.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		event.EndDate = *in.EndDate
	}
	if in.Location != nil {
		event.Location = *in.Location
	}
	event.Image = in.Image.apply(event.Image)
	event.UpdatedAt = s.timestamp()

	if err := s.db.Set(ctx, s.eventPath(eventID), event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, session Session, eventID int64) error {
	if !rbac.CanManageEvents(session.Role) {
		return errForbidden("Not allowed to delete this event")
	}
	exists, err := s.db.Exists(ctx, s.eventPath(eventID))
	if err != nil {
		return err
	}
	if !exists {
		return errNotFound("Event not found")
	}
	return s.db.Remove(ctx, s.eventPath(eventID))
}
