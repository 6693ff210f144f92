// Package fakegbdx is an in-process fake of the platform services, for tests.
//
// It serves the token endpoint, the task registry, the workflow service,
// the catalog and IDAHO chips on one httptest server.
package fakegbdx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	glog "github.com/labstack/gommon/log"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/catalog"
	"github.com/opst/gbdxkit/pkg/config/profiles"
	"github.com/opst/gbdxkit/pkg/tasks"
	"github.com/opst/gbdxkit/pkg/workflows"
)

const (
	Username     = "someone@example.com"
	Password     = "password"
	ClientID     = "client-id"
	ClientSecret = "client-secret"
)

// ChipCall is a request for a chip.
type ChipCall struct {
	Mode    string
	Bucket  string
	ImageID string
	Query   map[string]string
}

type Server struct {
	*httptest.Server

	// AccessToken is issued to the valid credentials.
	AccessToken string

	mu sync.Mutex

	// Tasks in the registry, by name.
	Tasks map[string]tasks.Definition

	// States which every workflow goes through, one by one for each GET.
	// The last one is kept. Default: [pending/submitted, running/started, complete/succeeded].
	States []workflows.State
	Events []workflows.Event

	Records []catalog.Record
	Chip    []byte

	// requests received
	Launched []json.RawMessage
	Searched []json.RawMessage
	Canceled []string
	Chips    []ChipCall

	polls map[string]int
	final map[string]workflows.State
}

// New starts a fake server. It is closed when the test ends.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		AccessToken: "fake-access-token",
		Tasks:       map[string]tasks.Definition{},
		States: []workflows.State{
			{State: "pending", Event: "submitted"},
			{State: "running", Event: "started"},
			{State: workflows.StateComplete, Event: workflows.EventSucceeded},
		},
		polls: map[string]int{},
		final: map[string]workflows.State{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(glog.OFF)

	e.POST("/auth/v1/oauth/token/", s.token)

	e.GET("/workflows/v1/tasks/:type", s.describe, s.bearer)
	e.POST("/workflows/v1/workflows", s.launch, s.bearer)
	e.GET("/workflows/v1/workflows/:id", s.status, s.bearer)
	e.GET("/workflows/v1/workflows/:id/events", s.events, s.bearer)
	e.POST("/workflows/v1/workflows/:id/cancel", s.cancel, s.bearer)
	e.POST("/catalog/v2/search", s.search, s.bearer)
	e.GET("/catalog/v2/record/:id", s.record, s.bearer)

	e.GET("/v1/chip/:mode/:bucket/:id", s.chip)

	s.Server = httptest.NewServer(e)
	t.Cleanup(s.Close)
	return s
}

// Profile points to the server, with valid credentials.
func (s *Server) Profile() *profiles.Profile {
	return &profiles.Profile{
		ApiRoot:   s.URL,
		IdahoRoot: s.URL,
		Credentials: profiles.Credentials{
			Username:     Username,
			Password:     Password,
			ClientID:     ClientID,
			ClientSecret: ClientSecret,
		},
	}
}

// Session signs in to the server.
func (s *Server) Session(t *testing.T) *auth.Session {
	t.Helper()
	sess, err := auth.Login(context.Background(), s.Profile(), auth.WithHTTPClient(s.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func message(c echo.Context, code int, format string, args ...any) error {
	return c.JSON(code, map[string]string{"message": fmt.Sprintf(format, args...)})
}

func (s *Server) token(c echo.Context) error {
	if c.FormValue("grant_type") != "password" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
	if c.FormValue("client_id") != ClientID || c.FormValue("client_secret") != ClientSecret {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
	}
	if c.FormValue("username") != Username || c.FormValue("password") != Password {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"access_token":  s.AccessToken,
		"token_type":    "Bearer",
		"refresh_token": "fake-refresh-token",
	})
}

func (s *Server) bearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer "+s.AccessToken {
			return message(c, http.StatusUnauthorized, "unauthorized")
		}
		return next(c)
	}
}

func (s *Server) describe(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.Tasks[c.Param("type")]
	if !ok {
		return message(c, http.StatusNotFound, "task %s not found", c.Param("type"))
	}
	return c.JSON(http.StatusOK, def)
}

func (s *Server) launch(c echo.Context) error {
	body := json.RawMessage{}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return message(c, http.StatusBadRequest, "broken json: %s", err)
	}
	doc := tasks.Document{}
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.Tasks) == 0 {
		return message(c, http.StatusBadRequest, "workflow has no tasks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Launched = append(s.Launched, body)
	id := fmt.Sprintf("%d", 4000000000000+len(s.Launched))
	s.polls[id] = 0
	return c.JSON(http.StatusOK, workflows.Workflow{ID: id, State: s.States[0]})
}

func (s *Server) status(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	n, ok := s.polls[id]
	if !ok {
		return message(c, http.StatusNotFound, "workflow %s not found", id)
	}
	state, ok := s.final[id]
	if !ok {
		state = s.States[min(n, len(s.States)-1)]
		s.polls[id] = n + 1
	}
	return c.JSON(http.StatusOK, workflows.Workflow{ID: id, Owner: Username, State: state})
}

func (s *Server) events(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[c.Param("id")]; !ok {
		return message(c, http.StatusNotFound, "workflow %s not found", c.Param("id"))
	}
	return c.JSON(http.StatusOK, map[string]any{"Events": s.Events})
}

func (s *Server) cancel(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.polls[id]; !ok {
		return message(c, http.StatusNotFound, "workflow %s not found", id)
	}
	s.Canceled = append(s.Canceled, id)
	s.final[id] = workflows.State{State: workflows.StateComplete, Event: workflows.EventCanceled}
	return c.NoContent(http.StatusOK)
}

var equalFilter = regexp.MustCompile(`^\s*(\w+)\s*=\s*'([^']*)'\s*$`)

func (s *Server) search(c echo.Context) error {
	body := json.RawMessage{}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return message(c, http.StatusBadRequest, "broken json: %s", err)
	}
	q := struct {
		Filters []string `json:"filters"`
		Types   []string `json:"types"`
	}{}
	if err := json.Unmarshal(body, &q); err != nil {
		return message(c, http.StatusBadRequest, "broken query: %s", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Searched = append(s.Searched, body)

	results := []catalog.Record{}
RECORDS:
	for _, r := range s.Records {
		if 0 < len(q.Types) && !contains(q.Types, r.Type) {
			continue
		}
		for _, f := range q.Filters {
			m := equalFilter.FindStringSubmatch(f)
			if m == nil {
				return message(c, http.StatusBadRequest, "unsupported filter: %s", f)
			}
			if v, _ := r.Property(m[1]); v != m[2] {
				continue RECORDS
			}
		}
		results = append(results, r)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

func (s *Server) record(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Records {
		if r.Identifier == c.Param("id") {
			return c.JSON(http.StatusOK, r)
		}
	}
	return message(c, http.StatusNotFound, "record %s not found", c.Param("id"))
}

func (s *Server) chip(c echo.Context) error {
	if c.QueryParam("token") != s.AccessToken {
		return message(c, http.StatusUnauthorized, "token is invalid")
	}
	query := map[string]string{}
	for k, v := range c.QueryParams() {
		query[k] = strings.Join(v, ",")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Chips = append(s.Chips, ChipCall{
		Mode: c.Param("mode"), Bucket: c.Param("bucket"), ImageID: c.Param("id"), Query: query,
	})
	return c.Blob(http.StatusOK, "image/tiff", s.Chip)
}
