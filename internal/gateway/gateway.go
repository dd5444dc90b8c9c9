// Package gateway accepts player connections and turns them into the join
// and leave hooks of the hosted session.
//
// The protocol is line based. A joining client sends its options string
// ("?PlayerSessionId=...?PlayerId=...") as its first line and is answered
// with either "WELCOME <team>" or "KICK <reason>". Admitted clients stay
// connected until they hang up.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/showdown/internal/session"
)

// Kick reasons sent by the gateway itself.
const (
	ReasonServerFull     = "ServerFull"
	ReasonShuttingDown   = "ShuttingDown"
	ReasonOptionsTooLong = "OptionsTooLong"
)

const defaultHandshakeTimeout = 10 * time.Second

// Hooks are the session lifecycle calls made for each connection.
type Hooks interface {
	OnPlayerJoining(connID, options string) session.AdmissionResult
	OnPlayerLeft(connID string)
}

// Server implements the concurrent player connection logic.
type Server struct {
	Address string
	// MaxConnections of zero or less means no limit.
	MaxConnections   int
	HandshakeTimeout time.Duration
	Hooks            Hooks
	Logger           *logrus.Logger

	mu       sync.Mutex
	clients  map[string]*Client
	listener *net.TCPListener
	closing  bool
}

// Start opens the TCP socket and spins off the blocking accept loop, which is
// added to wg. Cancelling ctx closes the socket and every connection.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	socket, err := s.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", s.Address, err)
	}

	s.mu.Lock()
	s.listener = socket
	s.clients = make(map[string]*Client)
	s.mu.Unlock()

	wg.Add(1)
	go s.startBlockingLoop(ctx, socket, wg)
	return nil
}

// Addr is the address the gateway is listening on once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// NumConnections is the number of open player connections.
func (s *Server) NumConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", s.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address: %w", err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}
	return socket, nil
}

// startBlockingLoop is purely responsible for accepting new connections and
// spinning off goroutines to handle them.
func (s *Server) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	s.Logger.Infof("[GATEWAY] waiting for connections on %v", socket.Addr())

	connections := make(chan *net.TCPConn)
	go func() {
		defer close(connections)
		for {
			connection, err := socket.AcceptTCP()
			if errors.Is(err, net.ErrClosed) {
				return
			} else if err != nil {
				s.Logger.Warnf("[GATEWAY] failed to accept connection: %v", err)
				continue
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection, ok := <-connections:
			if !ok {
				break handleLoop
			}
			clientWg.Add(1)
			go s.acceptClient(connection, clientWg)
		}
	}

	s.Logger.Info("[GATEWAY] shutting down (closing player connections)")
	_ = socket.Close()
	s.closeAll()
	clientWg.Wait()
	s.Logger.Info("[GATEWAY] exited")
}

// acceptClient runs the join handshake and, if the player is admitted, holds
// the connection open until the player hangs up.
func (s *Server) acceptClient(connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	c := NewClient(uuid.NewString(), connection)
	if reason, ok := s.track(c); !ok {
		s.Logger.Infof("[GATEWAY] refused connection from %s: %s", c.IPAddr(), reason)
		_ = c.Send("KICK %s", reason)
		_ = c.Close()
		return
	}
	defer s.closeConnectionAndRecover(c)

	s.Logger.Infof("[GATEWAY] accepted connection %s from %s", c.ID, c.IPAddr())

	options, err := c.ReadLine(s.handshakeTimeout())
	if errors.Is(err, bufio.ErrTooLong) {
		s.Logger.Warnf("[GATEWAY] connection %s sent options over %d bytes", c.ID, MaxLineLength)
		_ = c.Send("KICK %s", ReasonOptionsTooLong)
		return
	}
	if err != nil {
		s.Logger.Warnf("[GATEWAY] connection %s never sent its options: %v", c.ID, err)
		return
	}

	result := s.Hooks.OnPlayerJoining(c.ID, options)
	if !result.Accepted {
		_ = c.Send("KICK %s", result.Reason)
		return
	}
	defer s.Hooks.OnPlayerLeft(c.ID)

	if err := c.Send("WELCOME %s", result.Team); err != nil {
		s.Logger.Warn(err.Error())
		return
	}
	s.holdConnection(c)
}

// holdConnection blocks until the client disconnects. Anything the client
// sends after joining is ignored.
func (s *Server) holdConnection(c *Client) {
	for {
		if _, err := c.ReadLine(0); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.Logger.Warnf("[GATEWAY] error reading from %s: %v", c.ID, err)
			}
			return
		}
	}
}

func (s *Server) track(c *Client) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ReasonShuttingDown, false
	}
	if s.MaxConnections > 0 && len(s.clients) >= s.MaxConnections {
		return ReasonServerFull, false
	}
	s.clients[c.ID] = c
	return "", true
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, c := range s.clients {
		_ = c.Close()
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics, disconnects the
// client, and removes them from the list regardless of the state of the connection.
func (s *Server) closeConnectionAndRecover(c *Client) {
	if err := recover(); err != nil {
		s.Logger.Errorf("[GATEWAY] error in client communication with %s: error=%s, trace: %s",
			c.IPAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.Logger.Warnf("[GATEWAY] failed to close client connection: %s", err)
	}

	s.mu.Lock()
	delete(s.clients, c.ID)
	s.mu.Unlock()

	s.Logger.Infof("[GATEWAY] disconnected client %s", c.ID)
}

func (s *Server) handshakeTimeout() time.Duration {
	if s.HandshakeTimeout > 0 {
		return s.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}
