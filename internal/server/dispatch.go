package server

import (
	"github.com/sirupsen/logrus"

	"computeq/internal/metrics"
	"computeq/internal/registry"
	"computeq/internal/runner"
	"computeq/internal/wire"
	"computeq/pkg/types"
)

// Dispatcher is the per-frame state machine, factored out of the socket
// loop so it can be exercised without a transport. For an unknown
// identity the only accepted payload is a FirstHandshake with a valid
// capability bitmask; for a registered identity, request envelopes are
// validated against the registered capabilities and forwarded to the
// façade.
type Dispatcher struct {
	registry *registry.Registry
	runner   *runner.Runner
	metrics  *metrics.Collector
	log      logrus.FieldLogger
}

// NewDispatcher wires the state machine. The collector may be nil.
func NewDispatcher(reg *registry.Registry, run *runner.Runner, collector *metrics.Collector, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		registry: reg,
		runner:   run,
		metrics:  collector,
		log:      log,
	}
}

// invalidReply is the generic ERROR_INVALID_INPUT response envelope sent
// for malformed payloads.
func invalidReply() []byte {
	return wire.MarshalResp(&wire.EnvelopeResp{
		Submit: &wire.SubmitResponse{Status: types.StatusInvalidInput},
	})
}

// allowed checks the submission against the client's capability bitmask.
// Ill-formed submissions pass through: the façade rejects them without
// enqueueing anything.
func allowed(caps types.Caps, req *wire.SubmitRequest) bool {
	switch {
	case req.Math != nil && req.Str == nil:
		flag, ok := types.RequiredForMath(req.Math.Op)
		return !ok || caps.Has(flag)
	case req.Str != nil && req.Math == nil:
		flag, ok := types.RequiredForStr(req.Str.Op)
		return !ok || caps.Has(flag)
	}
	return true
}

// HandleFrame processes one application payload from the given routing
// identity. It returns the reply payload; a nil reply means no frame is
// sent (the handshake success path).
func (d *Dispatcher) HandleFrame(identity, payload []byte) []byte {
	caps, registered := d.registry.Lookup(identity)
	if !registered {
		return d.handleHandshake(identity, payload)
	}

	env, err := wire.UnmarshalReq(payload)
	if err != nil {
		d.log.WithError(err).Warn("malformed request envelope")
		return invalidReply()
	}

	switch {
	case env.Submit != nil:
		if !allowed(caps, env.Submit) {
			d.metrics.RecordSubmit(env.Submit.Mode, types.StatusInvalidInput)
			return wire.MarshalResp(&wire.EnvelopeResp{
				Submit: &wire.SubmitResponse{Status: types.StatusInvalidInput},
			})
		}
		return wire.MarshalResp(&wire.EnvelopeResp{
			Submit: d.runner.Submit(env.Submit),
		})
	case env.Get != nil:
		return wire.MarshalResp(&wire.EnvelopeResp{
			Get: d.runner.Get(env.Get),
		})
	}
	return invalidReply()
}

// handleHandshake runs the UNKNOWN-state transition: a parseable
// handshake with valid capabilities registers the identity with no
// reply; anything else is answered ERROR_INVALID_INPUT.
func (d *Dispatcher) handleHandshake(identity, payload []byte) []byte {
	hs, err := wire.UnmarshalHandshake(payload)
	if err != nil || !hs.Caps().Valid() {
		d.log.WithField("identity", string(identity)).Warn("rejecting first frame: not a valid handshake")
		return invalidReply()
	}
	d.registry.Register(identity, hs.Caps())
	d.metrics.SetClients(d.registry.Len())
	d.log.WithFields(logrus.Fields{
		"identity": string(identity),
		"client":   hs.ClientName,
		"caps":     hs.Caps().String(),
	}).Info("client registered")
	return nil
}
