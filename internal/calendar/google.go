package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

// ErrUnknownState is returned when an OAuth callback carries a state this
// process did not issue, or whose verifier has expired.
var ErrUnknownState = errors.New("unknown or expired oauth state")

const verifierTTL = 10 * time.Minute

// InsertedEvent describes a created calendar event.
type InsertedEvent struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	HTMLLink string `json:"html_link"`
}

// GoogleClient runs the PKCE authorization code flow and reads and writes
// the user's primary Google Calendar.
type GoogleClient struct {
	conf      *oauth2.Config
	verifiers *expirable.LRU[string, string]
	loc       *time.Location
	endpoint  string
	now       func() time.Time
}

// NewGoogleClient creates a client from OAuth settings.
func NewGoogleClient(cfg config.CalendarConfig) (*GoogleClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google calendar: client id and secret are required")
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("google calendar: time zone: %w", err)
	}
	return &GoogleClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarScope, gcal.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		verifiers: expirable.NewLRU[string, string](1024, nil, verifierTTL),
		loc:       loc,
		now:       time.Now,
	}, nil
}

// Location returns the calendar time zone.
func (c *GoogleClient) Location() *time.Location { return c.loc }

// AuthURL starts a consent flow. An empty state gets a random one.
func (c *GoogleClient) AuthURL(state string) (authURL, usedState string) {
	if state == "" {
		state = uuid.NewString()
	}
	verifier := oauth2.GenerateVerifier()
	c.verifiers.Add(state, verifier)
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	), state
}

// Exchange trades an authorization code for a token using the verifier
// issued with state.
func (c *GoogleClient) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	verifier, ok := c.verifiers.Get(state)
	if !ok {
		return nil, ErrUnknownState
	}
	c.verifiers.Remove(state)
	tok, err := c.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (c *GoogleClient) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return svc, nil
}

// ListEvents returns expanded events of the primary calendar in [from, to).
func (c *GoogleClient) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]Event, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	var out []Event
	call := svc.Events.List("primary").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, ok := toEvent(item, c.loc)
			if ok {
				out = append(out, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return out, nil
}

func toEvent(item *gcal.Event, loc *time.Location) (Event, bool) {
	if item.Start == nil || item.End == nil {
		return Event{}, false
	}
	if item.Start.DateTime == "" {
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		if err != nil {
			return Event{}, false
		}
		return Event{Summary: item.Summary, Start: start, End: start.AddDate(0, 0, 1), AllDay: true}, true
	}
	start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
	end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
	if err1 != nil || err2 != nil {
		return Event{}, false
	}
	return Event{Summary: item.Summary, Start: start, End: end}, true
}

// CheckConflicts lists events for the next 30 days and detects overlaps.
func (c *GoogleClient) CheckConflicts(ctx context.Context, accessToken string, s *domain.StructuredSchedule) ([]Conflict, error) {
	now := c.now().In(c.loc)
	events, err := c.ListEvents(ctx, accessToken, now, now.Add(DefaultLookAhead))
	if err != nil {
		return nil, err
	}
	return DetectConflicts(s, events, now, DefaultLookAhead), nil
}

// InsertSchedule creates one recurring event per meeting.
func (c *GoogleClient) InsertSchedule(ctx context.Context, accessToken string, s *domain.StructuredSchedule) ([]InsertedEvent, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	now := c.now().In(c.loc)
	var out []InsertedEvent
	for _, course := range s.Schedule {
		for _, m := range course.Meetings {
			start, end, rule, ok := Recurrence(m, now)
			if !ok {
				continue
			}
			ev := &gcal.Event{
				Summary:     courseLabel(course),
				Location:    orDefault(m.Location, DefaultLocation),
				Description: details(course),
				Start:       &gcal.EventDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: c.loc.String()},
				End:         &gcal.EventDateTime{DateTime: end.Format("2006-01-02T15:04:05"), TimeZone: c.loc.String()},
				Recurrence:  []string{rule},
				Reminders: &gcal.EventReminders{
					UseDefault:      false,
					Overrides:       []*gcal.EventReminder{{Method: "popup", Minutes: 10}},
					ForceSendFields: []string{"UseDefault"},
				},
			}
			created, err := svc.Events.Insert("primary", ev).Context(ctx).Do()
			if err != nil {
				return out, fmt.Errorf("insert event for %s: %w", course.CourseCode, err)
			}
			slog.Info("Calendar event created", "course", course.CourseCode, "event_id", created.Id)
			out = append(out, InsertedEvent{ID: created.Id, Summary: created.Summary, HTMLLink: created.HtmlLink})
		}
	}
	return out, nil
}
