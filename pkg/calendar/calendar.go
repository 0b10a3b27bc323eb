// Package calendar connects the assistant to Google Calendar. OAuth2
// tokens persist in the configured store so authorization survives
// restarts.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

// Event is a calendar entry in the assistant's own shape.
type Event struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// API is the calendar surface the tool layer depends on.
type API interface {
	// IsAuthenticated reports whether a valid token is available.
	IsAuthenticated() bool

	// Upcoming returns the next events, soonest first.
	Upcoming(ctx context.Context, max int) ([]Event, error)

	// Create inserts a new event and returns it with its assigned ID.
	Create(ctx context.Context, event Event) (Event, error)
}

const tokenKey = "google-calendar-token"

// Config configures the Google Calendar client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string // defaults to "primary"
	Store        store.Store
	Logger       *slog.Logger
}

// Client talks to the Google Calendar API with OAuth2 user consent.
type Client struct {
	config     *oauth2.Config
	calendarID string
	kv         store.Store
	logger     *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *gcal.Service
}

var _ API = (*Client)(nil)

// NewClient creates a calendar client, restoring a previously stored
// token when available.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("calendar: client ID and secret are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/calendar/callback"
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		calendarID: cfg.CalendarID,
		kv:         cfg.Store,
		logger:     cfg.Logger.With("component", "calendar"),
	}

	if err := c.loadToken(); err == nil && c.token != nil {
		if err := c.initService(); err != nil {
			c.logger.Warn("stored token rejected, re-authorization required", "error", err)
			c.token = nil
		}
	}
	return c, nil
}

// IsAuthenticated reports whether a usable token is loaded.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil && c.token.Valid()
}

// AuthURL returns the consent URL to send the user to.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code for a token and
// persists it.
func (c *Client) HandleCallback(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("calendar: exchanging code: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if err := c.saveToken(); err != nil {
		c.logger.Warn("failed to persist token", "error", err)
	}
	return c.initService()
}

// Disconnect drops the token and removes it from the store.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.token = nil
	c.service = nil
	c.mu.Unlock()

	if c.kv == nil {
		return nil
	}
	if err := c.kv.Delete(tokenKey); err != nil && err != store.ErrNotFound {
		return err
	}
	return nil
}

// Upcoming returns the next events from the configured calendar.
func (c *Client) Upcoming(ctx context.Context, max int) ([]Event, error) {
	service, err := c.currentService()
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}

	list, err := service.Events.List(c.calendarID).
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: listing events: %w", err)
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, Event{
			ID:       item.Id,
			Title:    item.Summary,
			Location: item.Location,
			Start:    parseEventTime(item.Start),
			End:      parseEventTime(item.End),
		})
	}
	return events, nil
}

// Create inserts a new event into the configured calendar.
func (c *Client) Create(ctx context.Context, event Event) (Event, error) {
	service, err := c.currentService()
	if err != nil {
		return Event{}, err
	}

	inserted, err := service.Events.Insert(c.calendarID, &gcal.Event{
		Summary:  event.Title,
		Location: event.Location,
		Start:    &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:      &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("calendar: creating event: %w", err)
	}

	event.ID = inserted.Id
	return event, nil
}

func (c *Client) currentService() (*gcal.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.service == nil {
		return nil, fmt.Errorf("calendar: not authenticated")
	}
	return c.service, nil
}

func (c *Client) initService() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return fmt.Errorf("calendar: no token available")
	}

	ctx := context.Background()
	httpClient := c.config.Client(ctx, c.token)
	service, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("calendar: creating service: %w", err)
	}
	c.service = service
	return nil
}

func (c *Client) loadToken() error {
	if c.kv == nil {
		return nil
	}
	data, err := c.kv.Get(tokenKey)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = &token
	c.mu.Unlock()
	return nil
}

func (c *Client) saveToken() error {
	if c.kv == nil {
		return nil
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == nil {
		return fmt.Errorf("calendar: no token to save")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return c.kv.Put(tokenKey, data)
}

func parseEventTime(dt *gcal.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
