package matrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kazz187/asmith/internal/failure"
	"github.com/kazz187/asmith/internal/session"
	"github.com/kazz187/asmith/pkg/cerr"
)

const (
	apiPrefix          = "/_matrix/client/v3"
	defaultSyncTimeout = 30 * time.Second
	defaultDeviceName  = "asmith"
	// Extra time the HTTP client waits on top of the long-poll timeout.
	requestSlack = 15 * time.Second
)

const (
	opLogin  = "login"
	opWhoAmI = "whoami"
	opSync   = "sync"
	opSend   = "send"
	opJoin   = "join"
)

type Config struct {
	Homeserver  string
	UserID      string
	Password    string
	AccessToken string
	DeviceName  string
	SyncTimeout time.Duration
	HTTPClient  *http.Client
}

// SessionStore persists the login between restarts.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, userID string) error
}

// Message is a plain text message received in a joined room.
type Message struct {
	Room    string
	Sender  string
	Body    string
	EventID string
}

// Client speaks the Matrix client-server API. It handles plain text rooms
// only; encrypted events are ignored.
type Client struct {
	cfg      Config
	http     *http.Client
	sessions SessionStore

	mu          sync.Mutex
	userID      string
	deviceID    string
	accessToken string
	since       string
	synced      bool
}

func NewClient(cfg Config, sessions SessionStore) (*Client, error) {
	cfg.Homeserver = strings.TrimRight(strings.TrimSpace(cfg.Homeserver), "/")
	if cfg.Homeserver == "" {
		return nil, errors.New("matrix homeserver is required")
	}
	if _, err := url.ParseRequestURI(cfg.Homeserver); err != nil {
		return nil, fmt.Errorf("invalid homeserver url: %w", err)
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.SyncTimeout + requestSlack}
	}
	return &Client{cfg: cfg, http: hc, sessions: sessions}, nil
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Login authenticates with the configured access token, a persisted session
// or the password, in that order.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.AccessToken != "" {
		if err := c.useToken(ctx, c.cfg.AccessToken); err != nil {
			return err
		}
		c.restoreSince(ctx)
		c.persist(ctx)
		return nil
	}

	if s := c.storedSession(ctx); s != nil {
		err := c.useToken(ctx, s.AccessToken)
		if err == nil {
			c.mu.Lock()
			c.since = s.NextBatch
			c.mu.Unlock()
			slog.InfoContext(ctx, "restored matrix session", "user_id", s.UserID, "device_id", s.DeviceID)
			return nil
		}
		if KindOf(err) != failure.KindLogin {
			return err
		}
		slog.WarnContext(ctx, "stored matrix session rejected, logging in with password", "error", err)
		if err := c.sessions.Delete(ctx, s.UserID); err != nil {
			slog.WarnContext(ctx, "failed to delete stale matrix session", "user_id", s.UserID, "error", err)
		}
	}

	return c.passwordLogin(ctx)
}

func (c *Client) storedSession(ctx context.Context) *session.Session {
	if c.sessions == nil || c.cfg.UserID == "" {
		return nil
	}
	s, err := c.sessions.Get(ctx, c.cfg.UserID)
	if err != nil {
		if !cerr.IsCode(err, cerr.NotFound) {
			slog.WarnContext(ctx, "failed to restore matrix session", "kind", failure.KindSessionUnpickle, "error", err)
		}
		return nil
	}
	if !s.Valid() || s.Homeserver != c.cfg.Homeserver {
		return nil
	}
	return s
}

func (c *Client) restoreSince(ctx context.Context) {
	if s := c.storedSession(ctx); s != nil && s.UserID == c.UserID() {
		c.mu.Lock()
		c.since = s.NextBatch
		c.mu.Unlock()
	}
}

func (c *Client) useToken(ctx context.Context, token string) error {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()

	res, err := c.do(ctx, http.MethodGet, "/account/whoami", nil, nil, opWhoAmI, failure.KindLogin)
	if err != nil {
		return err
	}
	userID := res.Get("user_id").String()
	if userID == "" {
		return &Error{Kind: failure.KindProtocol, Op: opWhoAmI, Err: errors.New("missing user_id")}
	}
	c.mu.Lock()
	c.userID = userID
	c.deviceID = res.Get("device_id").String()
	c.mu.Unlock()
	return nil
}

func (c *Client) passwordLogin(ctx context.Context) error {
	if c.cfg.UserID == "" || c.cfg.Password == "" {
		return &Error{Kind: failure.KindLogin, Op: opLogin, Err: errors.New("no access token or password configured")}
	}
	body, err := sjson.SetBytes([]byte(`{"type":"m.login.password"}`), "identifier", map[string]string{
		"type": "m.id.user",
		"user": c.cfg.UserID,
	})
	if err == nil {
		body, err = sjson.SetBytes(body, "password", c.cfg.Password)
	}
	if err == nil {
		body, err = sjson.SetBytes(body, "initial_device_display_name", c.cfg.DeviceName)
	}
	if err != nil {
		return &Error{Kind: failure.KindLogin, Op: opLogin, Err: err}
	}

	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()

	res, err := c.do(ctx, http.MethodPost, "/login", nil, body, opLogin, failure.KindLogin)
	if err != nil {
		return err
	}
	token := res.Get("access_token").String()
	if token == "" {
		return &Error{Kind: failure.KindProtocol, Op: opLogin, Err: errors.New("missing access_token")}
	}

	c.mu.Lock()
	c.accessToken = token
	c.userID = res.Get("user_id").String()
	if c.userID == "" {
		c.userID = c.cfg.UserID
	}
	c.deviceID = res.Get("device_id").String()
	c.since = ""
	c.mu.Unlock()

	slog.InfoContext(ctx, "logged in to matrix", "user_id", c.UserID())
	c.persist(ctx)
	return nil
}

func (c *Client) persist(ctx context.Context) {
	if c.sessions == nil {
		return
	}
	c.mu.Lock()
	s := &session.Session{
		Homeserver:  c.cfg.Homeserver,
		UserID:      c.userID,
		DeviceID:    c.deviceID,
		AccessToken: c.accessToken,
		NextBatch:   c.since,
	}
	c.mu.Unlock()
	if err := c.sessions.Save(ctx, s); err != nil {
		slog.WarnContext(ctx, "failed to persist matrix session", "error", err)
	}
}

// Sync runs one long-poll cycle and returns the new text messages. Messages
// delivered by the first sync after start are backlog and are dropped.
func (c *Client) Sync(ctx context.Context) ([]Message, error) {
	c.mu.Lock()
	since, synced, self := c.since, c.synced, c.userID
	c.mu.Unlock()

	q := url.Values{}
	q.Set("timeout", strconv.FormatInt(c.cfg.SyncTimeout.Milliseconds(), 10))
	if since != "" {
		q.Set("since", since)
	} else {
		filter, _ := sjson.Set("", "room.timeline.limit", 1)
		q.Set("filter", filter)
	}

	res, err := c.do(ctx, http.MethodGet, "/sync", q, nil, opSync, failure.KindSync)
	if err != nil {
		return nil, err
	}
	next := res.Get("next_batch").String()
	if next == "" {
		return nil, &Error{Kind: failure.KindProtocol, Op: opSync, Err: errors.New("missing next_batch")}
	}

	res.Get("rooms.invite").ForEach(func(room, _ gjson.Result) bool {
		if err := c.join(ctx, room.String()); err != nil {
			slog.WarnContext(ctx, "failed to join room", "room", room.String(), "error", err)
		} else {
			slog.InfoContext(ctx, "joined room", "room", room.String())
		}
		return true
	})

	var msgs []Message
	if synced {
		msgs = timelineMessages(res, self)
	}

	c.mu.Lock()
	c.since = next
	c.synced = true
	c.mu.Unlock()
	c.persist(ctx)
	return msgs, nil
}

func timelineMessages(res gjson.Result, self string) []Message {
	var msgs []Message
	res.Get("rooms.join").ForEach(func(room, data gjson.Result) bool {
		for _, ev := range data.Get("timeline.events").Array() {
			if ev.Get("type").String() != "m.room.message" {
				continue
			}
			if ev.Get("content.msgtype").String() != "m.text" {
				continue
			}
			sender := ev.Get("sender").String()
			if sender == "" || sender == self {
				continue
			}
			msgs = append(msgs, Message{
				Room:    room.String(),
				Sender:  sender,
				Body:    ev.Get("content.body").String(),
				EventID: ev.Get("event_id").String(),
			})
		}
		return true
	})
	return msgs
}

// Send posts a notice to room. html is sent as the formatted body when set.
func (c *Client) Send(ctx context.Context, room, text, html string) error {
	content, err := sjson.SetBytes([]byte(`{"msgtype":"m.notice"}`), "body", text)
	if err == nil && html != "" {
		content, err = sjson.SetBytes(content, "format", "org.matrix.custom.html")
		if err == nil {
			content, err = sjson.SetBytes(content, "formatted_body", html)
		}
	}
	if err != nil {
		return &Error{Kind: failure.KindSend, Op: opSend, Err: err}
	}
	path := fmt.Sprintf("/rooms/%s/send/m.room.message/%s", url.PathEscape(room), ulid.Make().String())
	_, err = c.do(ctx, http.MethodPut, path, nil, content, opSend, failure.KindSend)
	return err
}

func (c *Client) join(ctx context.Context, room string) error {
	_, err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(room)+"/join", nil, []byte(`{}`), opJoin, failure.KindSend)
	return err
}

// Close releases idle connections. The session stays valid for the next run.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, op string, kind failure.Kind) (gjson.Result, error) {
	u := c.cfg.Homeserver + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return gjson.Result{}, &Error{Kind: failure.KindUnknown, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, &Error{Kind: transportKind(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &Error{Kind: transportKind(err), Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		errCode := gjson.GetBytes(respBody, "errcode").String()
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		k := kind
		if isAuthFailure(resp.StatusCode, errCode) {
			k = failure.KindLogin
		}
		return gjson.Result{}, &Error{Kind: k, Op: op, Status: resp.StatusCode, ErrCode: errCode, Err: errors.New(msg)}
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, &Error{Kind: failure.KindProtocol, Op: op, Status: resp.StatusCode, Err: errors.New("invalid json response")}
	}
	return gjson.ParseBytes(respBody), nil
}
