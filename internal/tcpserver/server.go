package tcpserver

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/config"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/store"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/subscription"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/updates"
)

// maxFrameSize bounds one wire line; report payloads ride on single
// frames so the cap is generous.
const maxFrameSize = 1024 * 1024

// collaboratorTimeout bounds each call to the auth server or the
// persistence stores made from a read loop.
const collaboratorTimeout = 10 * time.Second

// Deps are the collaborators a device session needs.
type Deps struct {
	Registry *session.Registry
	Subs     subscription.Validator
	Status   store.StatusStore
	Devices  store.DeviceStore
	Reports  store.ReportStore
	Catalog  *updates.Catalog
}

// Server owns the TCP listener and one goroutine per device connection.
type Server struct {
	cfg  config.Config
	deps Deps

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

func NewServer(cfg config.Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+s.cfg.TCPPort)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Info("tcp server listening", map[string]any{
		"addr": listener.Addr().String(),
	})

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Port returns the bound port, useful when the config asked for :0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Stop closes the listener and every live session, then waits for the
// read loops to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	s.deps.Registry.EachTCP(func(sess *session.TCP) {
		sess.Close(nil)
	})

	s.wg.Wait()
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				logger.Error("tcp accept failed", map[string]any{"error": err.Error()})
			}
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	localPort, _ := strconv.Atoi(s.cfg.TCPPort)
	sess := session.NewTCP(conn, localPort)
	s.deps.Registry.AddTCP(sess)

	logger.Info("device connected", map[string]any{"remote": sess.Base.Key()})

	defer s.cleanup(sess)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()

		if sess.MustDisconnect() {
			// flagged sessions are torn down by the reaper; anything
			// the device still sends is dropped
			continue
		}

		sess.Touch()

		if line == "" {
			continue
		}
		s.dispatch(sess, protocol.Parse(line))
	}

	if err := scanner.Err(); err != nil && !sess.MustDisconnect() {
		logger.Warn("device read failed", map[string]any{
			"remote": sess.Base.Key(),
			"error":  err.Error(),
		})
	}
}

// cleanup tears the session down after its read loop exits.
func (s *Server) cleanup(sess *session.TCP) {
	clientID := sess.GetClientID()

	sess.Close(nil)
	s.deps.Registry.RemoveTCP(sess)

	logger.Info("device disconnected", map[string]any{
		"remote":    sess.Base.Key(),
		"client_id": clientID,
	})

	// only mark offline if no other session took over the client id
	// (duplicate keep-new handover leaves the successor online)
	if clientID != "" && s.deps.Registry.FindByClientID(clientID) == nil {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if err := s.deps.Status.MarkOffline(ctx, clientID); err != nil {
			logger.Error("failed to mark client offline", map[string]any{
				"client_id": clientID,
				"error":     err.Error(),
			})
		}
	}
}
