package blogpage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/livefir/blogpage/internal/dom"
	"github.com/livefir/blogpage/internal/metrics"
	"github.com/livefir/blogpage/internal/patch"
	"github.com/livefir/blogpage/internal/query"
	"github.com/livefir/blogpage/internal/session"
)

// ErrPageNotFound is returned by a Renderer for a location it does not serve
var ErrPageNotFound = errors.New("page not found")

// Renderer renders the HTML of the page at loc, with both comment forms hidden
type Renderer interface {
	Render(w io.Writer, loc query.Location) error
}

// UpdateResponse is the body of every live update
type UpdateResponse struct {
	Patches  []patch.Patch     `json:"patches"`
	Redirect string            `json:"redirect,omitempty"`
	Meta     *ResponseMetadata `json:"meta,omitempty"`
}

// ResponseMetadata contains information about the action that produced an update
type ResponseMetadata struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors"`
	Action  string            `json:"action,omitempty"`
}

func newUpdateResponse(u Update, meta *ResponseMetadata) UpdateResponse {
	patches := u.Patches
	if patches == nil {
		patches = []patch.Patch{}
	}
	return UpdateResponse{Patches: patches, Redirect: u.Redirect, Meta: meta}
}

// Config configures the mount handler
type Config struct {
	Upgrader          *websocket.Upgrader
	SessionStore      session.Store
	WebSocketDisabled bool
	MinifyDisabled    bool
	Metrics           *metrics.Collector
	Logger            zerolog.Logger
	Validate          *validator.Validate
}

// Option is a functional option for configuring Mount
type Option func(*Config)

// WithUpgrader sets a custom WebSocket upgrader
func WithUpgrader(upgrader *websocket.Upgrader) Option {
	return func(c *Config) {
		c.Upgrader = upgrader
	}
}

// WithSessionStore sets the store that keeps page state between requests
func WithSessionStore(store session.Store) Option {
	return func(c *Config) {
		c.SessionStore = store
	}
}

// WithWebSocketDisabled disables WebSocket support, forcing HTTP-only mode
func WithWebSocketDisabled() Option {
	return func(c *Config) {
		c.WebSocketDisabled = true
	}
}

// WithMinifyDisabled serves rendered pages as they are
func WithMinifyDisabled() Option {
	return func(c *Config) {
		c.MinifyDisabled = true
	}
}

// WithMetrics records handler activity in collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}

// WithLogger sets the handler's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithValidator sets the payload validator
func WithValidator(validate *validator.Validate) Option {
	return func(c *Config) {
		c.Validate = validate
	}
}

// Mount creates an http.Handler serving the pages of renderer with live comment
// forms, pagination and password toggles.
//
// GET renders the page with both forms hidden, unless a form post just left state
// for it to restore. POST runs one action, either as JSON (answered with an
// UpdateResponse) or as a form post (answered with a 303 back to the page).
// A WebSocket upgrade on the page URL runs actions for as long as it stays open.
func Mount(renderer Renderer, opts ...Option) http.Handler {
	config := Config{
		Upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		SessionStore: session.NewManager(session.DefaultTTL),
		Logger:       log.Logger,
	}

	for _, opt := range opts {
		opt(&config)
	}

	if config.Metrics == nil {
		config.Metrics = metrics.NewCollector()
	}
	if config.Validate == nil {
		config.Validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &liveHandler{
		config:   config,
		renderer: renderer,
		locks:    newPageLocks(),
	}
}

// liveHandler handles both WebSocket and HTTP requests
type liveHandler struct {
	config   Config
	renderer Renderer
	locks    *pageLocks
}

func (h *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add header to indicate WebSocket availability
	if h.config.WebSocketDisabled {
		w.Header().Set("X-Blogpage-WebSocket", "disabled")
	} else {
		w.Header().Set("X-Blogpage-WebSocket", "enabled")
	}

	if websocket.IsWebSocketUpgrade(r) {
		if h.config.WebSocketDisabled {
			http.Error(w, "WebSocket is disabled on this endpoint", http.StatusBadRequest)
			return
		}
		h.handleWebSocket(w, r)
		return
	}

	switch r.Method {
	case http.MethodHead:
		// Capability check, headers only
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *liveHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, isNew := getSessionID(r)
	if isNew {
		http.SetCookie(w, sessionCookie(sessionID))
	}

	loc := requestLocation(r)
	unlock := h.locks.lock(sessionID, loc.Key())
	page, err := h.loadPage(r.Context(), sessionID, loc, true)
	if err == nil {
		// The saved state now matches what the browser is about to show
		err = savePageState(r.Context(), h.config.SessionStore, sessionID, loc.Key(), page.State())
	}
	unlock()
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := page.Document().Render(&buf); err != nil {
		h.writeError(w, fmt.Errorf("failed to render page: %w", err))
		return
	}

	h.config.Metrics.IncrementPageLoaded()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if h.config.MinifyDisabled {
		_, err = w.Write(buf.Bytes())
	} else {
		err = writeMinifiedHTML(w, buf.Bytes())
	}
	if err != nil {
		h.config.Logger.Warn().Err(err).Str("page", loc.Key()).Msg("failed to write page")
	}
}

func (h *liveHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID, isNew := getSessionID(r)
	if isNew {
		http.SetCookie(w, sessionCookie(sessionID))
	}

	loc := requestLocation(r)
	formPost := isFormPost(r)

	var msg message
	var err error
	if formPost {
		msg, err = parseActionFromForm(r)
	} else {
		msg, err = parseActionFromHTTP(r)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loc = locationFromHref(loc, newActionData(msg.Data).GetString("href"))

	unlock := h.locks.lock(sessionID, loc.Key())
	update, meta, err := h.dispatch(r.Context(), sessionID, loc, msg, formPost)
	unlock()
	if err != nil {
		h.writeError(w, err)
		return
	}

	if formPost {
		// Post/Redirect/Get: the page re-renders from the saved state
		target := update.Redirect
		if target == "" {
			target = loc.Key()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newUpdateResponse(update, meta)); err != nil {
		h.config.Logger.Warn().Err(err).Msg("failed to write update")
	}
}

// dispatch loads the page, runs msg against it and saves the resulting state.
// With pending, a page load that follows restores the state once. The caller
// holds the page lock.
func (h *liveHandler) dispatch(ctx context.Context, sessionID string, loc query.Location, msg message, pending bool) (Update, *ResponseMetadata, error) {
	page, err := h.loadPage(ctx, sessionID, loc, false)
	if err != nil {
		return Update{}, nil, err
	}

	update, meta := h.runAction(page, msg)

	state := page.State()
	state.Pending = pending && update.Redirect == ""
	if err := savePageState(ctx, h.config.SessionStore, sessionID, loc.Key(), state); err != nil {
		return Update{}, nil, err
	}
	return update, meta, nil
}

// runAction dispatches msg and records the outcome
func (h *liveHandler) runAction(page *Page, msg message) (Update, *ResponseMetadata) {
	meta := &ResponseMetadata{
		Success: true,
		Errors:  map[string]string{},
		Action:  msg.Action,
	}

	update, err := page.Dispatch(&ActionContext{
		Action: msg.Action,
		Data:   newActionData(msg.Data),
	})
	if err != nil {
		meta.Success = false
		meta.Errors = errorFields(err)

		var fieldErr FieldError
		var multiErr MultiError
		if errors.As(err, &multiErr) || errors.As(err, &fieldErr) {
			h.config.Metrics.IncrementValidationFailure()
		} else {
			h.config.Metrics.IncrementActionFailure()
		}
		h.config.Logger.Debug().Err(err).Str("action", msg.Action).Msg("action rejected")
		return Update{}, meta
	}

	h.config.Metrics.RecordAction(msg.Action)
	h.config.Metrics.AddPatches(len(update.Patches), update.Missed)
	if update.Redirect != "" {
		h.config.Metrics.IncrementRedirect()
	}

	h.config.Logger.Debug().
		Str("action", msg.Action).
		Int("patches", len(update.Patches)).
		Int("missed", update.Missed).
		Str("redirect", update.Redirect).
		Msg("action handled")

	return update, meta
}

// loadPage renders loc and brings it into the session's saved state. With
// pendingOnly, only state a form post left pending is restored.
func (h *liveHandler) loadPage(ctx context.Context, sessionID string, loc query.Location, pendingOnly bool) (*Page, error) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, loc); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", loc.Key(), err)
	}

	doc, err := dom.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loc.Key(), err)
	}

	saved, err := loadPageState(ctx, h.config.SessionStore, sessionID, loc.Key())
	if err != nil {
		return nil, err
	}
	if pendingOnly && saved != nil && !saved.Pending {
		saved = nil
	}

	return NewPage(loc, doc, saved, h.config.Validate, h.config.Logger), nil
}

func (h *liveHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, isNew := getSessionID(r)
	responseHeader := http.Header{}
	if isNew {
		responseHeader.Add("Set-Cookie", sessionCookie(sessionID).String())
	}

	conn, err := h.config.Upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.config.Logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	loc := requestLocation(r)
	logger := h.config.Logger.With().Str("page", loc.Key()).Str("remote", conn.RemoteAddr().String()).Logger()

	h.config.Metrics.ConnectionOpened()
	defer h.config.Metrics.ConnectionClosed()
	logger.Info().Msg("client connected")

	ctx := r.Context()

	// The connection owns its page for as long as it is open; its state is not saved
	unlock := h.locks.lock(sessionID, loc.Key())
	page, err := h.loadPage(ctx, sessionID, loc, false)
	unlock()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load page")
		return
	}

	// Initial update carries no patches; the rendered page already holds the state
	if err := h.writeUpdate(conn, newUpdateResponse(Update{}, &ResponseMetadata{Success: true, Errors: map[string]string{}})); err != nil {
		logger.Warn().Err(err).Msg("failed to send initial update")
		return
	}

	// message loop
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		msg, err := parseActionFromWebSocket(data)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to parse message")
			continue
		}

		update, meta := h.runAction(page, msg)
		if err := h.writeUpdate(conn, newUpdateResponse(update, meta)); err != nil {
			logger.Warn().Err(err).Msg("WebSocket write failed")
			break
		}
	}

	logger.Info().Msg("client disconnected")
}

func (h *liveHandler) writeUpdate(conn *websocket.Conn, response UpdateResponse) error {
	b, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return writeUpdateWebSocket(conn, b)
}

func (h *liveHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrPageNotFound) {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	h.config.Logger.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// requestLocation is the page address as the browser sees it
func requestLocation(r *http.Request) query.Location {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return query.Location{
		Origin:   scheme + "://" + r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
}

// locationFromHref prefers the origin the client reports when its href names
// the same page
func locationFromHref(loc query.Location, href string) query.Location {
	if href == "" {
		return loc
	}
	reported, err := query.ParseLocation(href)
	if err != nil || reported.Origin == "" || reported.Key() != loc.Key() {
		return loc
	}
	loc.Origin = reported.Origin
	return loc
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
