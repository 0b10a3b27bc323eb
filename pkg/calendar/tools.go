package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/tools"
)

// Tools returns the calendar tools for the given API.
func Tools(api API) []tools.Definition {
	return []tools.Definition{
		{
			Name:        "list_calendar_events",
			Description: "List the user's upcoming calendar events.",
			Parameters: map[string]any{
				"max": map[string]any{
					"type":        "integer",
					"description": "Maximum number of events to return (default 10)",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if !api.IsAuthenticated() {
					return nil, fmt.Errorf("calendar is not connected")
				}
				max := 10
				if v, ok := args["max"].(float64); ok {
					max = int(v)
				}
				events, err := api.Upcoming(ctx, max)
				if err != nil {
					return nil, err
				}
				out := make([]map[string]any, len(events))
				for i, e := range events {
					out[i] = map[string]any{
						"title":    e.Title,
						"start":    e.Start.Format(time.RFC3339),
						"end":      e.End.Format(time.RFC3339),
						"location": e.Location,
					}
				}
				return map[string]any{"events": out}, nil
			},
		},
		{
			Name:        "create_calendar_event",
			Description: "Create a calendar event. Times must be RFC3339, e.g. 2026-09-01T15:00:00+02:00.",
			Parameters: map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Event title",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Start time, RFC3339",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "End time, RFC3339",
				},
				"location": map[string]any{
					"type":        "string",
					"description": "Optional location",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if !api.IsAuthenticated() {
					return nil, fmt.Errorf("calendar is not connected")
				}
				title, _ := args["title"].(string)
				if title == "" {
					return nil, fmt.Errorf("title cannot be empty")
				}
				startStr, _ := args["start"].(string)
				start, err := time.Parse(time.RFC3339, startStr)
				if err != nil {
					return nil, fmt.Errorf("cannot parse start time %q", startStr)
				}
				endStr, _ := args["end"].(string)
				end, err := time.Parse(time.RFC3339, endStr)
				if err != nil {
					return nil, fmt.Errorf("cannot parse end time %q", endStr)
				}
				if !end.After(start) {
					return nil, fmt.Errorf("end must be after start")
				}
				location, _ := args["location"].(string)

				created, err := api.Create(ctx, Event{
					Title:    title,
					Location: location,
					Start:    start,
					End:      end,
				})
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"id":    created.ID,
					"title": created.Title,
					"start": created.Start.Format(time.RFC3339),
				}, nil
			},
		},
	}
}
