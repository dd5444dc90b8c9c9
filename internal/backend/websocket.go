package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sdkVersion  = "5.1.0"
	sdkLanguage = "Go"

	defaultRequestTimeout      = 10 * time.Second
	defaultHealthCheckInterval = 60 * time.Second
)

// Actions understood by the backend. Requests carry a RequestId and are
// answered with a message echoing it; events are pushed by the backend.
const (
	actionActivateServerProcess  = "ActivateServerProcess"
	actionActivateGameSession    = "ActivateGameSession"
	actionAcceptPlayerSession    = "AcceptPlayerSession"
	actionRemovePlayerSession    = "RemovePlayerSession"
	actionStopMatchBackfill      = "StopMatchBackfill"
	actionTerminateGameSession   = "TerminateGameSession"
	actionTerminateServerProcess = "TerminateServerProcess"
	actionHeartbeatServerProcess = "HeartbeatServerProcess"

	eventCreateGameSession = "CreateGameSession"
	eventUpdateGameSession = "UpdateGameSession"
	eventTerminateProcess  = "TerminateProcess"
)

type message struct {
	Action    string `json:"Action"`
	RequestID string `json:"RequestId,omitempty"`
}

func (m *message) header() *message { return m }

type outbound interface {
	header() *message
}

type response struct {
	message
	StatusCode   int    `json:"StatusCode,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

type activateServerProcessRequest struct {
	message
	SdkVersion  string   `json:"SdkVersion"`
	SdkLanguage string   `json:"SdkLanguage"`
	Port        int      `json:"Port"`
	LogPaths    []string `json:"LogPaths"`
}

type gameSessionRequest struct {
	message
	GameSessionID string `json:"GameSessionId"`
}

type playerSessionRequest struct {
	message
	GameSessionID   string `json:"GameSessionId"`
	PlayerSessionID string `json:"PlayerSessionId"`
}

type stopMatchBackfillRequest struct {
	message
	GameSessionArn string `json:"GameSessionArn"`
	TicketID       string `json:"TicketId"`
}

type heartbeatRequest struct {
	message
	HealthStatus bool `json:"HealthStatus"`
}

// WebSocketSDK implements SDK over a persistent websocket connection to the
// orchestration backend, exchanging JSON messages.
type WebSocketSDK struct {
	URL       string
	ProcessID string
	HostID    string
	FleetID   string
	AuthToken string

	RequestTimeout      time.Duration
	HealthCheckInterval time.Duration

	Logger *logrus.Logger
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	closed        chan struct{}
	pending       map[string]chan response
	params        ProcessParameters
	gameSessionID string
}

// Init dials the backend. The process is not registered until ProcessReady.
func (s *WebSocketSDK) Init(ctx context.Context) error {
	endpoint, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("parsing backend url: %w", err)
	}
	q := endpoint.Query()
	q.Set("pID", s.ProcessID)
	q.Set("hostId", s.HostID)
	q.Set("fleetId", s.FleetID)
	q.Set("Authorization", s.AuthToken)
	q.Set("sdkVersion", sdkVersion)
	q.Set("sdkLanguage", sdkLanguage)
	endpoint.RawQuery = q.Encode()

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = make(chan struct{})
	s.pending = make(map[string]chan response)
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

// ProcessReady registers params with the backend and starts reporting health.
func (s *WebSocketSDK) ProcessReady(ctx context.Context, params ProcessParameters) error {
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()

	err := s.call(ctx, &activateServerProcessRequest{
		message:     message{Action: actionActivateServerProcess},
		SdkVersion:  sdkVersion,
		SdkLanguage: sdkLanguage,
		Port:        params.Port,
		LogPaths:    params.LogPaths,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	go s.healthLoop(closed)
	return nil
}

func (s *WebSocketSDK) ActivateSession() error {
	id, err := s.CurrentSessionID()
	if err != nil {
		return err
	}
	return s.call(context.Background(), &gameSessionRequest{
		message:       message{Action: actionActivateGameSession},
		GameSessionID: id,
	})
}

func (s *WebSocketSDK) AcceptPlayerSession(playerSessionID string) error {
	return s.playerSessionCall(actionAcceptPlayerSession, playerSessionID)
}

func (s *WebSocketSDK) RemovePlayerSession(playerSessionID string) error {
	return s.playerSessionCall(actionRemovePlayerSession, playerSessionID)
}

func (s *WebSocketSDK) playerSessionCall(action, playerSessionID string) error {
	id, err := s.CurrentSessionID()
	if err != nil {
		return err
	}
	return s.call(context.Background(), &playerSessionRequest{
		message:         message{Action: action},
		GameSessionID:   id,
		PlayerSessionID: playerSessionID,
	})
}

func (s *WebSocketSDK) StopMatchBackfill(ticketID string) error {
	id, err := s.CurrentSessionID()
	if err != nil {
		return err
	}
	return s.call(context.Background(), &stopMatchBackfillRequest{
		message:        message{Action: actionStopMatchBackfill},
		GameSessionArn: id,
		TicketID:       ticketID,
	})
}

// CurrentSessionID returns the id of the session the backend assigned to
// this process through its last CreateGameSession event.
func (s *WebSocketSDK) CurrentSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return "", ErrNotConnected
	}
	if s.gameSessionID == "" {
		return "", ErrNoGameSession
	}
	return s.gameSessionID, nil
}

func (s *WebSocketSDK) TerminateSession() error {
	id, err := s.CurrentSessionID()
	if err != nil {
		return err
	}
	return s.call(context.Background(), &gameSessionRequest{
		message:       message{Action: actionTerminateGameSession},
		GameSessionID: id,
	})
}

// EndProcessing notifies the backend that the process is exiting and closes
// the connection once the backend has acknowledged it.
func (s *WebSocketSDK) EndProcessing() error {
	err := s.call(context.Background(), &gameSessionRequest{
		message: message{Action: actionTerminateServerProcess},
	})
	if err != nil {
		return err
	}
	return s.Close()
}

// Close drops the connection without notifying the backend.
func (s *WebSocketSDK) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.disconnect(conn)
	return nil
}

// call sends req and blocks until the backend answers it, the request times
// out, ctx is cancelled or the connection drops.
func (s *WebSocketSDK) call(ctx context.Context, req outbound) error {
	h := req.header()
	h.RequestID = uuid.NewString()

	replies := make(chan response, 1)
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	closed := s.closed
	s.pending[h.RequestID] = replies
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, h.RequestID)
		s.mu.Unlock()
	}()

	if err := s.send(req); err != nil {
		return fmt.Errorf("sending %s: %w", h.Action, err)
	}

	timeout := time.NewTimer(s.requestTimeout())
	defer timeout.Stop()

	select {
	case resp := <-replies:
		if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			return &RequestError{Action: h.Action, StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
		}
		return nil
	case <-timeout.C:
		return fmt.Errorf("%s: timed out waiting for the backend to respond", h.Action)
	case <-closed:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebSocketSDK) send(v outbound) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *WebSocketSDK) readLoop(conn *websocket.Conn) {
	defer s.disconnect(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Logger.Errorf("[BACKEND] connection lost: %v", err)
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *WebSocketSDK) dispatch(data []byte) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		s.Logger.Warnf("[BACKEND] discarding malformed message: %v", err)
		return
	}

	if resp.RequestID != "" {
		s.mu.Lock()
		replies, ok := s.pending[resp.RequestID]
		s.mu.Unlock()
		if ok {
			select {
			case replies <- resp:
			default:
				s.Logger.Warnf("[BACKEND] duplicate response to %s request %s", resp.Action, resp.RequestID)
			}
			return
		}
	}

	s.mu.Lock()
	params := s.params
	s.mu.Unlock()

	switch resp.Action {
	case eventCreateGameSession:
		var session GameSession
		if err := json.Unmarshal(data, &session); err != nil {
			s.Logger.Errorf("[BACKEND] malformed %s event: %v", resp.Action, err)
			return
		}
		s.mu.Lock()
		s.gameSessionID = session.GameSessionID
		s.mu.Unlock()
		if params.OnStartGameSession != nil {
			s.runHandler(resp.Action, func() { params.OnStartGameSession(session) })
		}
	case eventUpdateGameSession:
		var update UpdateGameSession
		if err := json.Unmarshal(data, &update); err != nil {
			s.Logger.Errorf("[BACKEND] malformed %s event: %v", resp.Action, err)
			return
		}
		if params.OnUpdateGameSession != nil {
			s.runHandler(resp.Action, func() { params.OnUpdateGameSession(update) })
		}
	case eventTerminateProcess:
		if params.OnProcessTerminate != nil {
			s.runHandler(resp.Action, params.OnProcessTerminate)
		}
	default:
		s.Logger.Debugf("[BACKEND] ignoring unhandled message %s", resp.Action)
	}
}

// runHandler invokes an event handler on its own goroutine so that handlers
// can make backend calls without stalling the read loop.
func (s *WebSocketSDK) runHandler(event string, fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				s.Logger.Errorf("[BACKEND] %s handler panicked: %v, trace: %s", event, err, debug.Stack())
			}
		}()
		fn()
	}()
}

func (s *WebSocketSDK) healthLoop(closed <-chan struct{}) {
	ticker := time.NewTicker(s.healthCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			s.reportHealth()
		}
	}
}

func (s *WebSocketSDK) reportHealth() {
	s.mu.Lock()
	check := s.params.OnHealthCheck
	s.mu.Unlock()

	healthy := check != nil && check()
	err := s.send(&heartbeatRequest{
		message:      message{Action: actionHeartbeatServerProcess, RequestID: uuid.NewString()},
		HealthStatus: healthy,
	})
	if err != nil {
		s.Logger.Warnf("[BACKEND] failed to report health: %v", err)
	}
}

func (s *WebSocketSDK) disconnect(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		close(s.closed)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *WebSocketSDK) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *WebSocketSDK) healthCheckInterval() time.Duration {
	if s.HealthCheckInterval > 0 {
		return s.HealthCheckInterval
	}
	return defaultHealthCheckInterval
}
