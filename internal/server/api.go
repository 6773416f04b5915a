package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/services"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

// HistoryLimit is the number of transfers returned by GET /history.
const HistoryLimit = 10

const (
	// StateTTL bounds how long an authorization redirect may take to come back.
	StateTTL = 10 * time.Minute

	maxPendingStates = 1024
)

// TokenStore is the slice of tokens.Store the API uses.
type TokenStore interface {
	Status(ctx context.Context, session string) (map[models.Platform]bool, error)
	SaveToken(ctx context.Context, session string, platform models.Platform, tok *oauth2.Token) error
}

// SessionStore records session activity. Implemented by tokens.Sessions.
type SessionStore interface {
	Touch(ctx context.Context, id string) (models.Session, error)
}

// HistoryLister lists recorded transfers. Implemented by repositories.TransferRepository.
type HistoryLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.TransferJob, error)
}

// Pinger reports database reachability. Implemented by [*sql.DB].
type Pinger interface {
	PingContext(ctx context.Context) error
}

// APIConfig wires the API's collaborators. History, Sessions and DB are optional.
type APIConfig struct {
	Jobs        *tasks.JobManager
	Platforms   *services.Registry
	Tokens      TokenStore
	Sessions    SessionStore
	History     HistoryLister
	DB          Pinger
	Source      models.Platform
	Destination models.Platform
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// API serves the transfer, progress and authorization endpoints.
type API struct {
	APIConfig
	configs map[models.Platform]*oauth2.Config
	states  *expirable.LRU[string, string] // OAuth state -> session
}

// NewAPI creates an API.
func NewAPI(cfg APIConfig) *API {
	if cfg.Logger == nil {
		cfg.Logger = shared.NopLogger()
	}
	if cfg.Source == "" {
		cfg.Source = models.Spotify
	}
	if cfg.Destination == "" {
		cfg.Destination = models.SoundCloud
	}
	return &API{
		APIConfig: cfg,
		configs:   cfg.Platforms.OAuthConfigs(),
		states:    expirable.NewLRU[string, string](maxPendingStates, nil, StateTTL),
	}
}

// Register adds the API routes to r.
func (a *API) Register(r *BasicRouter) {
	r.HandleFunc(http.MethodPost, "/transfer", a.transfer)
	r.HandleFunc(http.MethodGet, "/progress", a.progress)
	r.HandleFunc(http.MethodPost, "/cancel", a.cancel)
	r.HandleFunc(http.MethodGet, "/history", a.history)
	r.HandleFunc(http.MethodGet, "/health", a.health)
	r.HandleFunc(http.MethodGet, "/auth/{platform}", a.authorize)
	r.HandleFunc(http.MethodGet, "/callback/{platform}", a.callback)
}

// Routes builds a router with logging and panic recovery serving the API.
func (a *API) Routes() *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(a.Logger), Logging(a.Logger))
	a.Register(r)
	return r
}

type errorResponse struct {
	Error   string `json:"error"`
	AuthURL string `json:"auth_url,omitempty"`
}

type transferResponse struct {
	SessionID   string `json:"session_id"`
	ProgressURL string `json:"progress_url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func authPath(p models.Platform, session string) string {
	return fmt.Sprintf("/auth/%s?%s", p, url.Values{SessionCookie: {session}}.Encode())
}

func progressPath(session string) string {
	return "/progress?" + url.Values{SessionCookie: {session}}.Encode()
}

func (a *API) touch(r *http.Request, session string) {
	if a.Sessions == nil {
		return
	}
	if _, err := a.Sessions.Touch(r.Context(), session); err != nil {
		a.Logger.Warn("failed to record session", "err", err)
	}
}

// transfer validates the request and starts a background job.
//
// POST /transfer?spotify_url=<playlist>&session_id=<id>
func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	session := ensureSession(w, r)
	ref := r.URL.Query().Get("spotify_url")
	if ref == "" {
		ref = r.FormValue("spotify_url")
	}
	if ref == "" {
		writeError(w, http.StatusBadRequest, "spotify_url is required")
		return
	}

	src, err := a.Platforms.Source(a.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, tasks.FriendlyMessage(err))
		return
	}
	if _, err := src.ParsePlaylistRef(ref); err != nil {
		writeError(w, http.StatusBadRequest, tasks.FriendlyMessage(err))
		return
	}
	a.touch(r, session)

	status, err := a.Tokens.Status(r.Context(), session)
	if err != nil {
		a.Logger.Error("failed to read token status", "err", err)
		writeError(w, http.StatusInternalServerError, tasks.FriendlyMessage(err))
		return
	}
	for _, p := range []models.Platform{a.Source, a.Destination} {
		if !status[p] {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error:   fmt.Sprintf("Authorization required: connect %s and try again", p.DisplayName()),
				AuthURL: authPath(p, session),
			})
			return
		}
	}

	err = a.Jobs.Submit(tasks.TransferRequest{
		Session:     session,
		Source:      a.Source,
		Destination: a.Destination,
		SourceURL:   ref,
	})
	if errors.Is(err, tasks.ErrJobRunning) {
		writeError(w, http.StatusConflict, "A transfer is already running for this session")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, tasks.FriendlyMessage(err))
		return
	}

	w.Header().Set("Location", progressPath(session))
	writeJSON(w, http.StatusAccepted, transferResponse{SessionID: session, ProgressURL: progressPath(session)})
}

// progress returns the last known progress without waiting on the job.
//
// GET /progress?session_id=<id>
func (a *API) progress(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, a.Jobs.Progress(session))
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if !a.Jobs.Cancel(session) {
		writeError(w, http.StatusNotFound, "No transfer is running for this session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if a.History == nil {
		writeJSON(w, http.StatusOK, []models.TransferSummary{})
		return
	}

	jobs, err := a.History.List(r.Context(), map[string]any{"session_id": session, "limit": HistoryLimit})
	if err != nil {
		a.Logger.Error("failed to list transfers", "err", err)
		writeError(w, http.StatusInternalServerError, "Could not load transfer history")
		return
	}

	out := make([]models.TransferSummary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Database  string            `json:"database"`
	Platforms []models.Platform `json:"platforms"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", Platforms: a.Platforms.Platforms()}
	code := http.StatusOK

	if a.DB == nil {
		resp.Database = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			a.Logger.Error("database ping failed", "err", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (a *API) platform(r *http.Request) (models.Platform, *oauth2.Config, error) {
	p, err := models.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", shared.ErrUnknownPlatform, err)
	}
	cfg, ok := a.configs[p]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownPlatform, p)
	}
	return p, cfg, nil
}

// authorize redirects to the platform's consent page. The state is a fresh random token bound to the
// session until the callback redeems it or [StateTTL] passes.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	p, _, err := a.platform(r)
	if err != nil {
		writeError(w, http.StatusNotFound, tasks.FriendlyMessage(err))
		return
	}
	session := ensureSession(w, r)
	a.touch(r, session)

	state, err := shared.GenerateState()
	if err != nil {
		a.Logger.Error("failed to generate state", "err", err)
		writeError(w, http.StatusInternalServerError, "Could not start authorization")
		return
	}

	target, err := a.Platforms.AuthURL(p, state)
	if err != nil {
		writeError(w, http.StatusNotFound, tasks.FriendlyMessage(err))
		return
	}
	a.states.Add(state, session)
	http.Redirect(w, r, target, http.StatusFound)
}

// redeemState returns the session bound to state. A state can be redeemed once.
func (a *API) redeemState(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	session, ok := a.states.Get(state)
	if !ok || !a.states.Remove(state) {
		return "", false
	}
	return session, true
}

// callback exchanges the authorization code and stores the token for the session bound to state.
func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	p, cfg, err := a.platform(r)
	if err != nil {
		writeError(w, http.StatusNotFound, tasks.FriendlyMessage(err))
		return
	}

	session, ok := a.redeemState(r.URL.Query().Get("state"))
	if !ok {
		a.Logger.Warn("unknown authorization state", "platform", p)
		writeError(w, http.StatusBadRequest, "Authorization expired or invalid. Please try again")
		return
	}

	ctx := r.Context()
	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	token, err := exchange(ctx, cfg, r)
	if err != nil {
		a.Logger.Warn("authorization failed", "platform", p, "err", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Could not connect %s. Please try again", p.DisplayName()))
		return
	}

	if err := a.Tokens.SaveToken(ctx, session, p, token); err != nil {
		a.Logger.Error("failed to save token", "platform", p, "err", err)
		writeError(w, http.StatusInternalServerError, "Could not save authorization")
		return
	}

	a.Logger.Info("platform connected", "platform", p)
	ensureSessionValue(w, r, session)
	renderAuthorized(w, p, "You can return to the app and start your transfer.")
}

// ensureSessionValue sets the session cookie to id.
func ensureSessionValue(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	q.Set(SessionCookie, id)
	r.URL.RawQuery = q.Encode()
	ensureSession(w, r)
}
