package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/ingest"
)

type Ingester interface {
	Process(context.Context, internal.Notification) (ingest.Result, error)
}

type Events interface {
	Create(_ context.Context, id string, _ internal.Draft) (*internal.Event, error)
	Get(_ context.Context, id string) (*internal.Event, error)
	ListPage(_ context.Context, limit int, cursor string) (internal.Page[*internal.Event], error)
	Confirm(_ context.Context, id string, _ internal.Edits) (*internal.Event, error)
	Discard(_ context.Context, id string) (*internal.Event, error)
	Resync(_ context.Context, id string) (*internal.Event, error)
}

type Accounts interface {
	List(context.Context) ([]*internal.Account, error)
	Add(context.Context, *internal.Account) (*internal.Account, error)
	Remove(_ context.Context, id string) error
}

type NotificationLog interface {
	Notifications(_ context.Context, after int64, limit int) ([]*internal.NotificationRecord, error)
}

type Pinger interface {
	Ping(context.Context) error
}

// Deps are the services exposed over HTTP. Health is optional.
type Deps struct {
	Ingester      Ingester
	Events        Events
	Accounts      Accounts
	Notifications NotificationLog
	Hub           *Hub
	Health        Pinger
}

type Server struct {
	deps      Deps
	jwtSecret string
	logger    *slog.Logger
	engine    *gin.Engine
}

// NewServer builds the HTTP API. When jwtSecret is empty the /v1 routes
// are not authenticated.
func NewServer(deps Deps, jwtSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}
	s := &Server{
		deps:      deps,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)

	v1 := r.Group("/v1")
	if s.jwtSecret != "" {
		v1.Use(jwtAuth(s.jwtSecret))
	}
	v1.POST("/notifications", s.postNotification)
	v1.GET("/notifications", s.listNotifications)

	v1.POST("/events", s.createEvent)
	v1.GET("/events", s.listEvents)
	v1.GET("/events/:id", s.getEvent)
	v1.POST("/events/:id/confirm", s.confirmEvent)
	v1.POST("/events/:id/discard", s.discardEvent)
	v1.POST("/events/:id/sync", s.resyncEvent)

	v1.GET("/accounts", s.listAccounts)
	v1.POST("/accounts", s.addAccount)
	// Account IDs are "platform/name".
	v1.DELETE("/accounts/:platform/:name", s.removeAccount)

	v1.GET("/stream", s.deps.Hub.serveWS)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) postNotification(c *gin.Context) {
	var n internal.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	res, err := s.deps.Ingester.Process(c.Request.Context(), n)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if res.Err != nil {
		s.writeError(c, res.Err)
		return
	}
	status := http.StatusOK
	if res.Outcome == internal.OutcomeStored {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (s *Server) listNotifications(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	after, err := internal.DecodeCursor(c.Query("cursor"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	recs, err := s.deps.Notifications.Notifications(c.Request.Context(), after, limit+1)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, internal.NewPage(recs, limit, func(r *internal.NotificationRecord) int64 { return r.Seq }))
}

type createEventRequest struct {
	ID string `json:"id"`
	internal.Draft
}

func (s *Server) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	if req.ID == "" {
		req.ID = internal.NotificationID("manual|"+uuid.NewString(), time.Now().UnixMilli())
	}
	req.Draft.Normalize()
	ev, err := s.deps.Events.Create(c.Request.Context(), req.ID, req.Draft)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) listEvents(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	page, err := s.deps.Events.ListPage(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getEvent(c *gin.Context) {
	ev, err := s.deps.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) confirmEvent(c *gin.Context) {
	var edits internal.Edits
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&edits); err != nil {
			s.writeError(c, badRequest(err))
			return
		}
	}
	ev, err := s.deps.Events.Confirm(c.Request.Context(), c.Param("id"), edits)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) discardEvent(c *gin.Context) {
	ev, err := s.deps.Events.Discard(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) resyncEvent(c *gin.Context) {
	ev, err := s.deps.Events.Resync(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

func (s *Server) listAccounts(c *gin.Context) {
	accs, err := s.deps.Accounts.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if accs == nil {
		accs = []*internal.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"items": accs})
}

type addAccountRequest struct {
	Platform     string    `json:"platform"`
	Name         string    `json:"name"`
	CalendarID   string    `json:"calendarId"`
	Endpoint     string    `json:"endpoint"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}

func (s *Server) addAccount(c *gin.Context) {
	var req addAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest(err))
		return
	}
	acc, err := s.deps.Accounts.Add(c.Request.Context(), &internal.Account{
		Platform:     req.Platform,
		Name:         req.Name,
		CalendarID:   req.CalendarID,
		Endpoint:     req.Endpoint,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (s *Server) removeAccount(c *gin.Context) {
	id := c.Param("platform") + "/" + c.Param("name")
	if err := s.deps.Accounts.Remove(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return internal.DefaultPageLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, badRequest(err)
	}
	return internal.ClampLimit(n), nil
}
