// Package client implements the DEALER-side session: a random routing
// identity, the one-shot capability handshake, and blocking request /
// reply exchanges with a receive timeout. The interactive command loop
// lives in repl.go.
package client

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"computeq/internal/wire"
	"computeq/pkg/types"
)

// ErrTimeout is returned when the server does not answer within the
// configured receive timeout. The outstanding ticket, if any, stays in
// the local map and can be retrieved later.
var ErrTimeout = errors.New("client: receive timed out")

// Config holds the session's knobs.
type Config struct {
	Address        string
	Port           int
	ReceiveTimeout time.Duration
	Caps           types.Caps
	Name           string
}

// Client is one dealer session. Its methods are not safe for concurrent
// use: the request/reply exchange on a single dealer socket is strictly
// sequential.
type Client struct {
	cfg  Config
	sock *zmq.Socket
	log  logrus.FieldLogger

	mu      sync.Mutex
	pending map[types.Ticket]struct{}
}

// New connects the dealer socket. The routing identity is random and at
// least 8 octets, so two clients on one host never collide.
func New(cfg Config, log logrus.FieldLogger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if !cfg.Caps.Valid() {
		return nil, fmt.Errorf("client: invalid capability bitmask %#x", uint8(cfg.Caps))
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 3 * time.Second
	}

	sock, err := zmq.NewSocket(zmq.DEALER)
	if err != nil {
		return nil, fmt.Errorf("create dealer socket: %w", err)
	}
	if err := sock.SetIdentity(uuid.NewString()); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set identity: %w", err)
	}
	if err := sock.SetLinger(100 * time.Millisecond); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set linger: %w", err)
	}
	if err := sock.SetRcvtimeo(cfg.ReceiveTimeout); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set receive timeout: %w", err)
	}

	endpoint := fmt.Sprintf("tcp://%s:%d", cfg.Address, cfg.Port)
	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	return &Client{
		cfg:     cfg,
		sock:    sock,
		log:     log,
		pending: make(map[types.Ticket]struct{}),
	}, nil
}

// Handshake sends the one-shot registration frame. The server stores the
// capabilities and sends no reply.
func (c *Client) Handshake() error {
	payload := wire.MarshalHandshake(&wire.FirstHandshake{
		ClientName:    c.cfg.Name,
		ExecFunctions: uint32(c.cfg.Caps),
	})
	if _, err := c.sock.SendBytes(payload, 0); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"caps": c.cfg.Caps.String(),
		"name": c.cfg.Name,
	}).Info("handshake sent")
	return nil
}

func (c *Client) sendEnvelope(env *wire.EnvelopeReq) error {
	if _, err := c.sock.SendBytes(wire.MarshalReq(env), 0); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

func (c *Client) recvEnvelope() (*wire.EnvelopeResp, error) {
	msg, err := c.sock.RecvMessageBytes(0)
	if err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	if len(msg) == 0 {
		return nil, fmt.Errorf("receive: empty message")
	}
	resp, err := wire.UnmarshalResp(msg[len(msg)-1])
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp, nil
}

// submit runs one submission exchange in the given mode.
func (c *Client) submit(req *wire.SubmitRequest, mode types.SubmitMode) (*wire.SubmitResponse, error) {
	send := *req
	send.Mode = mode
	if err := c.sendEnvelope(&wire.EnvelopeReq{Submit: &send}); err != nil {
		return nil, err
	}
	resp, err := c.recvEnvelope()
	if err != nil {
		return nil, err
	}
	if resp.Submit == nil {
		return nil, fmt.Errorf("protocol error: response carries no submit variant")
	}
	if mode == types.NonBlocking && resp.Submit.Ticket != nil {
		c.mu.Lock()
		c.pending[*resp.Submit.Ticket] = struct{}{}
		c.mu.Unlock()
	}
	return resp.Submit, nil
}

// SubmitBlocking submits a request for inline execution and waits for
// its result.
func (c *Client) SubmitBlocking(req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	return c.submit(req, types.Blocking)
}

// SubmitNonBlocking submits a request for ticketed execution. The minted
// ticket is tracked in the local pending map.
func (c *Client) SubmitNonBlocking(req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	return c.submit(req, types.NonBlocking)
}

// Get retrieves a ticket's result. A terminal status removes the local
// pending entry; a transport timeout leaves it usable for a later Get.
func (c *Client) Get(ticket types.Ticket, mode types.WaitMode, timeoutMS uint32) (*wire.GetResponse, error) {
	env := &wire.EnvelopeReq{Get: &wire.GetRequest{
		Ticket:   ticket,
		WaitMode: mode,
	}}
	if mode == types.WaitUpTo {
		env.Get.TimeoutMS = timeoutMS
		// The server holds the reply for up to timeoutMS; stretch the
		// socket deadline so the wait itself is not reported as a
		// timeout.
		wait := c.cfg.ReceiveTimeout + time.Duration(timeoutMS)*time.Millisecond
		if err := c.sock.SetRcvtimeo(wait); err != nil {
			return nil, fmt.Errorf("set receive timeout: %w", err)
		}
		defer c.sock.SetRcvtimeo(c.cfg.ReceiveTimeout)
	}

	if err := c.sendEnvelope(env); err != nil {
		return nil, err
	}
	resp, err := c.recvEnvelope()
	if err != nil {
		return nil, err
	}
	if resp.Get == nil {
		return nil, fmt.Errorf("protocol error: response carries no get variant")
	}
	if resp.Get.Status.Terminal() {
		c.mu.Lock()
		delete(c.pending, ticket)
		c.mu.Unlock()
	}
	return resp.Get, nil
}

// Pending lists the tickets awaiting retrieval.
func (c *Client) Pending() []types.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Ticket, 0, len(c.pending))
	for t := range c.pending {
		out = append(out, t)
	}
	return out
}

// Close releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	return c.sock.Close()
}
