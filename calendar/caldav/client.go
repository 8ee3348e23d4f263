package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/guilherme-santos/notifcal/internal"
)

const productID = "-//notifcal//EN"

type Options struct {
	// HTTPClient is the transport used for every request.
	HTTPClient *http.Client
	// Location is used for timed events.
	Location *time.Location
	Logger   *slog.Logger
}

// Client writes events as calendar objects named after the event ID, so
// the same event always lands on the same resource.
//
// Accounts carry the server URL in Endpoint, the calendar collection path
// in CalendarID and the credentials in Name and AccessToken.
type Client struct {
	opts Options
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts}
}

// UpdateEvent overwrites an existing calendar object.
func (c Client) UpdateEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	ctx, req := withRequest(ctx, "If-Match", "*")
	if err := c.put(ctx, acc, ev); err != nil {
		return classify(req, err, http.StatusNotFound, http.StatusPreconditionFailed)
	}
	c.logf(acc, "event updated", ev.ID)
	return nil
}

// InsertEvent creates the calendar object, failing if it already exists.
func (c Client) InsertEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	ctx, req := withRequest(ctx, "If-None-Match", "*")
	if err := c.put(ctx, acc, ev); err != nil {
		if req.status == http.StatusPreconditionFailed {
			return &internal.RemoteError{StatusCode: req.status, Body: req.body, Err: internal.ErrAlreadyExists}
		}
		return classify(req, err)
	}
	c.logf(acc, "event created", ev.ID)
	return nil
}

func (c Client) DeleteEvent(ctx context.Context, acc *internal.Account, id string) error {
	client, err := c.client(acc)
	if err != nil {
		return err
	}
	ctx, req := withRequest(ctx, "", "")
	if err := client.RemoveAll(ctx, objectPath(acc, id)); err != nil {
		return classify(req, err, http.StatusNotFound, http.StatusGone)
	}
	c.logf(acc, "event deleted", id)
	return nil
}

func (c Client) put(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	client, err := c.client(acc)
	if err != nil {
		return err
	}
	_, err = client.PutCalendarObject(ctx, objectPath(acc, ev.ID), newCalendar(ev, c.opts.Location, time.Now()))
	return err
}

func (c Client) client(acc *internal.Account) (*caldav.Client, error) {
	if acc.Endpoint == "" {
		return nil, fmt.Errorf("caldav: account %s has no endpoint: %w", acc, internal.ErrInvalidInput)
	}
	httpClient := &authClient{
		username: acc.Name,
		password: acc.AccessToken,
		base:     c.opts.HTTPClient,
	}
	return caldav.NewClient(httpClient, acc.Endpoint)
}

func (c Client) logf(acc *internal.Account, msg, eventID string) {
	c.opts.Logger.Debug("caldav: "+msg, "account_id", acc.ID(), "event_id", eventID)
}

func objectPath(acc *internal.Account, id string) string {
	dir := acc.CalendarID
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return path.Join(dir, id+".ics")
}

// classify turns a failed request into a RemoteError. Statuses listed in
// notFound mean the calendar object does not exist.
func classify(req *request, err error, notFound ...int) error {
	if req.status == 0 {
		return err
	}
	re := &internal.RemoteError{StatusCode: req.status, Body: req.body, Err: err}
	if req.status == http.StatusUnauthorized {
		re.Err = internal.ErrAuthExpired
	}
	for _, code := range notFound {
		if req.status == code {
			re.Err = internal.ErrRemoteNotFound
		}
	}
	return re
}

type requestKey struct{}

// request carries extra headers for one call and records how the server
// answered it.
type request struct {
	header http.Header
	status int
	body   string
}

func withRequest(ctx context.Context, key, value string) (context.Context, *request) {
	req := &request{header: make(http.Header)}
	if key != "" {
		req.header.Set(key, value)
	}
	return context.WithValue(ctx, requestKey{}, req), req
}

const maxErrorBody = 4 << 10

// authClient adds basic auth and the per-call headers to every request.
type authClient struct {
	username string
	password string
	base     *http.Client
}

func (c *authClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", "notifcal/1.0")

	r, _ := req.Context().Value(requestKey{}).(*request)
	if r != nil {
		for k, v := range r.header {
			req.Header[k] = v
		}
	}
	resp, err := c.base.Do(req)
	if err != nil || r == nil {
		return resp, err
	}
	r.status = resp.StatusCode
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		r.body = string(body)
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	return resp, nil
}
