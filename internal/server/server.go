// ============================================================================
// computeq server - router loop
// ============================================================================
//
// Package: internal/server
// File: server.go
// Purpose: Single-threaded receive/dispatch/send loop on a ROUTER socket.
//
// The loop is the sole owner of the socket. Each inbound message is a
// multipart frame set whose first frame is the sender's routing identity
// and whose last frame is the application payload. Replies are sent as
// [identity | payload] with no delimiter frame.
//
// Shutdown: the loop polls with a short timeout and checks the stop flag
// on every iteration, so a signal-delivered stop is observed within one
// poll interval. A terminating receive exits the loop, and so does an
// interrupted one once the stop flag is raised; any other transport error
// aborts only the current exchange.
//
// ============================================================================

package server

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"computeq/internal/metrics"
	"computeq/internal/registry"
	"computeq/internal/runner"
)

const defaultPollInterval = 250 * time.Millisecond

// Config holds the router's knobs.
type Config struct {
	Address string
	Port    int

	// PollInterval bounds how long a stop request can go unobserved.
	PollInterval time.Duration
}

// Server owns the ROUTER socket and the dispatch state machine.
type Server struct {
	dispatch *Dispatcher
	sock     *zmq.Socket
	stop     *atomic.Bool
	log      logrus.FieldLogger
	endpoint string
	interval time.Duration
}

// New binds the ROUTER socket and wires the dispatcher. stop is the
// process-wide flag the signal handler flips.
func New(cfg Config, reg *registry.Registry, run *runner.Runner, collector *metrics.Collector, stop *atomic.Bool, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	sock, err := zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("create router socket: %w", err)
	}
	if err := sock.SetLinger(100 * time.Millisecond); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set linger: %w", err)
	}

	endpoint := fmt.Sprintf("tcp://%s:%d", cfg.Address, cfg.Port)
	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}

	return &Server{
		dispatch: NewDispatcher(reg, run, collector, log),
		sock:     sock,
		stop:     stop,
		log:      log,
		endpoint: endpoint,
		interval: interval,
	}, nil
}

// Endpoint returns the bound endpoint.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Run drives the router loop until the stop flag is set or the transport
// terminates. It must be called from exactly one goroutine.
func (s *Server) Run() error {
	poller := zmq.NewPoller()
	poller.Add(s.sock, zmq.POLLIN)

	s.log.WithField("endpoint", s.endpoint).Info("server running")

	for !s.stop.Load() {
		polled, err := poller.Poll(s.interval)
		if err != nil {
			if done := s.noteRecvError(err, "poll"); done {
				return nil
			}
			continue
		}
		if len(polled) == 0 {
			continue
		}

		msg, err := s.sock.RecvMessageBytes(0)
		if err != nil {
			if done := s.noteRecvError(err, "receive"); done {
				return nil
			}
			continue
		}
		if len(msg) < 2 {
			s.log.WithField("frames", len(msg)).Warn("dropping message without payload frame")
			continue
		}

		identity := msg[0]
		payload := msg[len(msg)-1]

		reply := s.dispatch.HandleFrame(identity, payload)
		if reply == nil {
			continue
		}
		if _, err := s.sock.SendBytes(identity, zmq.SNDMORE); err != nil {
			s.log.WithError(err).Error("failed to send identity frame, aborting exchange")
			continue
		}
		if _, err := s.sock.SendBytes(reply, 0); err != nil {
			s.log.WithError(err).Error("failed to send payload frame, aborting exchange")
			continue
		}
	}

	s.log.Info("stop requested, exiting router loop")
	return nil
}

// noteRecvError classifies a receive-side transport error. It reports
// true when the loop should exit: an interrupted call with the stop flag
// raised, or a terminated context.
func (s *Server) noteRecvError(err error, op string) bool {
	switch zmq.AsErrno(err) {
	case zmq.Errno(syscall.EINTR):
		// Signal delivery; the loop condition re-checks the stop flag.
		return s.stop.Load()
	case zmq.ETERM:
		s.log.Info("transport terminated, exiting router loop")
		return true
	case zmq.Errno(syscall.EAGAIN):
		return false
	default:
		s.log.WithError(err).WithField("op", op).Error("transport error, aborting exchange")
		return false
	}
}

// Close releases the socket.
func (s *Server) Close() error {
	return s.sock.Close()
}
