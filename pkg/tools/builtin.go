package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/memory"
	"github.com/stippi/go-voice-assistant/pkg/music"
	"github.com/stippi/go-voice-assistant/pkg/timers"
)

// TimerTools returns the timer control tools.
func TimerTools(mgr *timers.Manager) []Definition {
	return []Definition{
		{
			Name:        "set_timer",
			Description: "Set a countdown timer. Use when the user asks for a timer, an alarm in relative time, or a reminder after a duration.",
			Parameters: map[string]any{
				"duration": map[string]any{
					"type":        "string",
					"description": "Duration like '10m', '90s' or '1h30m'",
				},
				"label": map[string]any{
					"type":        "string",
					"description": "Short label for the timer, e.g. 'pasta'",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				durStr, _ := args["duration"].(string)
				d, err := time.ParseDuration(durStr)
				if err != nil {
					return nil, fmt.Errorf("cannot parse duration %q", durStr)
				}
				label, _ := args["label"].(string)
				timer, err := mgr.Set(d, label)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"id":       timer.ID,
					"label":    timer.Label,
					"fires_at": timer.FiresAt.Format(time.RFC3339),
				}, nil
			},
		},
		{
			Name:        "cancel_timer",
			Description: "Cancel an active timer by its label.",
			Parameters: map[string]any{
				"label": map[string]any{
					"type":        "string",
					"description": "The label of the timer to cancel",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				label, _ := args["label"].(string)
				if !mgr.CancelByLabel(label) {
					return nil, fmt.Errorf("no active timer labeled %q", label)
				}
				return "canceled", nil
			},
		},
		{
			Name:        "list_timers",
			Description: "List all active timers with their remaining time.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				active := mgr.Active()
				out := make([]map[string]any, len(active))
				for i, t := range active {
					out[i] = map[string]any{
						"label":     t.Label,
						"remaining": t.Remaining().Round(time.Second).String(),
					}
				}
				return map[string]any{"timers": out}, nil
			},
		},
	}
}

// MemoryTools returns the long-term memory tools.
func MemoryTools(mem *memory.Memory) []Definition {
	categoryParam := map[string]any{
		"type":        "string",
		"description": "One of: user, preferences, household, notes",
	}
	return []Definition{
		{
			Name:        "memorize",
			Description: "Store a fact in long-term memory. Use when the user shares something worth remembering or explicitly asks you to remember.",
			Parameters: map[string]any{
				"category": categoryParam,
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember, as a full sentence",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				catStr, _ := args["category"].(string)
				category, err := memory.ParseCategory(catStr)
				if err != nil {
					return nil, err
				}
				content, _ := args["content"].(string)
				entry, err := mem.Append(category, content)
				if err != nil {
					return nil, err
				}
				return map[string]any{"remembered": entry.Content, "category": string(category)}, nil
			},
		},
		{
			Name:        "forget",
			Description: "Remove a fact from long-term memory. Pass the exact text of the entry as it appears in the memory section.",
			Parameters: map[string]any{
				"category": categoryParam,
				"content": map[string]any{
					"type":        "string",
					"description": "The exact text of the entry to forget",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				catStr, _ := args["category"].(string)
				category, err := memory.ParseCategory(catStr)
				if err != nil {
					return nil, err
				}
				content, _ := args["content"].(string)
				removed, err := mem.DeleteByContent(category, content)
				if err != nil {
					return nil, err
				}
				if !removed {
					return nil, fmt.Errorf("no %s entry matching %q", category, content)
				}
				return "forgotten", nil
			},
		},
	}
}

// MusicTools returns the music playback control tools.
func MusicTools(ctrl *music.Controller) []Definition {
	return []Definition{
		{
			Name:        "play_music",
			Description: "Start playing a track or artist.",
			Parameters: map[string]any{
				"track": map[string]any{
					"type":        "string",
					"description": "Track or playlist to play",
				},
				"artist": map[string]any{
					"type":        "string",
					"description": "Artist, if known",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				track, _ := args["track"].(string)
				artist, _ := args["artist"].(string)
				if track == "" {
					return nil, fmt.Errorf("track cannot be empty")
				}
				return ctrl.Play(track, artist), nil
			},
		},
		{
			Name:        "pause_music",
			Description: "Pause music playback.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return ctrl.Pause(), nil
			},
		},
		{
			Name:        "resume_music",
			Description: "Resume paused music playback.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				status, err := ctrl.Resume()
				if err != nil {
					return nil, err
				}
				return status, nil
			},
		},
		{
			Name:        "stop_music",
			Description: "Stop music playback entirely.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return ctrl.Stop(), nil
			},
		},
		{
			Name:        "set_music_volume",
			Description: "Set the music volume between 0 and 100.",
			Parameters: map[string]any{
				"volume": map[string]any{
					"type":        "integer",
					"description": "Volume percentage, 0-100",
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				vol, ok := args["volume"].(float64)
				if !ok {
					return nil, fmt.Errorf("volume must be a number")
				}
				status, err := ctrl.SetVolume(int(vol))
				if err != nil {
					return nil, err
				}
				return status, nil
			},
		},
	}
}
