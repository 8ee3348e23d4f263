package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/notifcal/internal"
)

type Options struct {
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
	// TokenURL overrides the OAuth token endpoint used on refresh.
	TokenURL string
	// HTTPClient is the transport under the OAuth client.
	HTTPClient *http.Client
	// Location is used for timed events.
	Location *time.Location
	Logger   *slog.Logger
}

// Client writes events to Google Calendar using the event ID as the
// Google event ID.
type Client struct {
	oauthCfg *oauth2.Config
	opts     Options
}

// NewClient builds a client from an OAuth client credentials file. Without
// credentials, tokens can still be used but not refreshed.
func NewClient(credJSON []byte, opts Options) (*Client, error) {
	oauthCfg := &oauth2.Config{
		Endpoint: google.Endpoint,
		Scopes:   []string{calendar.CalendarEventsScope},
	}
	if len(credJSON) > 0 {
		var err error
		oauthCfg, err = google.ConfigFromJSON(credJSON, calendar.CalendarEventsScope)
		if err != nil {
			return nil, fmt.Errorf("google: parsing credentials file: %v", err)
		}
	}
	if opts.TokenURL != "" {
		oauthCfg.Endpoint.TokenURL = opts.TokenURL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		oauthCfg: oauthCfg,
		opts:     opts,
	}, nil
}

// UpdateEvent replaces the remote event. A previously deleted event is
// restored, since Google keeps cancelled events under their ID.
func (c Client) UpdateEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	svc, err := c.calendarSvc(ctx, acc)
	if err != nil {
		return err
	}
	_, err = svc.Events.Update(acc.CalendarID, ev.ID, newGoogleEvent(ev, c.opts.Location)).Context(ctx).Do()
	if err != nil {
		return remoteError(err)
	}
	c.logf(acc, "event updated", ev.ID)
	return nil
}

func (c Client) InsertEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	svc, err := c.calendarSvc(ctx, acc)
	if err != nil {
		return err
	}
	gevent := newGoogleEvent(ev, c.opts.Location)
	gevent.Id = ev.ID
	_, err = svc.Events.Insert(acc.CalendarID, gevent).Context(ctx).Do()
	if err != nil {
		return remoteError(err)
	}
	c.logf(acc, "event created", ev.ID)
	return nil
}

func (c Client) DeleteEvent(ctx context.Context, acc *internal.Account, id string) error {
	svc, err := c.calendarSvc(ctx, acc)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(acc.CalendarID, id).Context(ctx).Do()
	if err != nil {
		return remoteError(err)
	}
	c.logf(acc, "event deleted", id)
	return nil
}

// RefreshToken exchanges the refresh token for a new access token.
func (c Client) RefreshToken(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	if c.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.opts.HTTPClient)
	}
	tok, err := c.oauthCfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: acc.RefreshToken,
	}).Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return nil, &internal.RemoteError{
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
				Err:        internal.ErrAuthExpired,
			}
		}
		return nil, fmt.Errorf("google: refreshing token: %w", err)
	}

	updated := *acc
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.Expiry = tok.Expiry
	return &updated, nil
}

func (c Client) calendarSvc(ctx context.Context, acc *internal.Account) (*calendar.Service, error) {
	if c.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.opts.HTTPClient)
	}
	// Tokens are refreshed by the account registry, never behind its back.
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: acc.AccessToken,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.opts.Endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

func (c Client) logf(acc *internal.Account, msg, eventID string) {
	c.opts.Logger.Debug("google: "+msg, "account_id", acc.ID(), "event_id", eventID)
}

// remoteError classifies a Calendar API error, keeping the response body.
func remoteError(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	re := &internal.RemoteError{
		StatusCode: gErr.Code,
		Body:       gErr.Body,
		Err:        gErr,
	}
	switch {
	case gErr.Code == http.StatusNotFound, gErr.Code == http.StatusGone, errIsReason(gErr, "deleted"):
		re.Err = internal.ErrRemoteNotFound
	case gErr.Code == http.StatusUnauthorized:
		re.Err = internal.ErrAuthExpired
	}
	return re
}

func errIsReason(gErr *googleapi.Error, reason string) bool {
	for _, err := range gErr.Errors {
		if err.Reason == reason {
			return true
		}
	}
	return false
}
