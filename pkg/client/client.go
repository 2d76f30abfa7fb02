// Package client implements the agent side state of one XRCE client :
// its object graph, its stream set and its liveliness supervision.
package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/object"
	"github.com/samsamfire/goxrce/pkg/stream"
	"github.com/samsamfire/goxrce/pkg/wire"
)

// Liveliness states of a session
const (
	StateAlive uint8 = iota
	StateDead
	StateToRemove
)

var stateNames = map[uint8]string{
	StateAlive:    "ALIVE",
	StateDead:     "DEAD",
	StateToRemove: "TO-REMOVE",
}

// Actions the liveliness scan may request from the processor
const (
	LivelinessNone uint8 = iota
	LivelinessProbe
	LivelinessRemove
)

// ProxyClient binds a client key to its object graph and stream set.
// It carries an opaque instance token; objects of its graph hold no
// reference to it, while read jobs hold the pointer itself.
type ProxyClient struct {
	mu        sync.Mutex
	logger    *slog.Logger
	key       wire.ClientKey
	sessionId uint8
	token     uuid.UUID
	props     []wire.Property

	graph   *object.Graph
	streams *stream.Set

	lastTraffic time.Time
	state       uint8
	probes      int

	// Cancellation hooks of the running read jobs, keyed by request id
	jobs map[wire.RequestId]jobHandle
}

type jobHandle struct {
	streamId uint8
	cancel   func()
}

func NewProxyClient(logger *slog.Logger, key wire.ClientKey, sessionId uint8, props []wire.Property, mw middleware.Middleware, mtu int, window int) *ProxyClient {
	logger = logger.With("service", "[CLNT]", "client", key.String())
	return &ProxyClient{
		logger:      logger,
		key:         key,
		sessionId:   sessionId,
		token:       uuid.New(),
		props:       props,
		graph:       object.NewGraph(logger, mw),
		streams:     stream.NewSet(logger, key, sessionId, mtu, window),
		lastTraffic: time.Now(),
		jobs:        map[wire.RequestId]jobHandle{},
	}
}

func (c *ProxyClient) Key() wire.ClientKey {
	return c.key
}

func (c *ProxyClient) SessionId() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionId
}

// Token is the opaque identity of this client instance. It changes when
// a client key is rebound to a new session.
func (c *ProxyClient) Token() uuid.UUID {
	return c.token
}

func (c *ProxyClient) Properties() []wire.Property {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props
}

func (c *ProxyClient) Graph() *object.Graph {
	return c.graph
}

func (c *ProxyClient) Streams() *stream.Set {
	return c.streams
}

// Touch records inbound traffic and revives the session
func (c *ProxyClient) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTraffic = time.Now()
	if c.state != StateAlive {
		c.logger.Info("session is alive again", "state", stateNames[c.state])
	}
	c.state = StateAlive
	c.probes = 0
}

// LivelinessTick advances the liveliness state machine. Called once per
// probe interval by the processor scan.
func (c *ProxyClient) LivelinessTick(now time.Time, deadThreshold time.Duration, removeAttempts int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateAlive:
		if now.Sub(c.lastTraffic) > deadThreshold {
			c.state = StateDead
			c.probes = 0
			c.logger.Warn("session is dead, probing", "threshold", deadThreshold)
			return LivelinessProbe
		}
		return LivelinessNone
	case StateDead:
		c.probes++
		if c.probes >= removeAttempts {
			c.state = StateToRemove
			c.logger.Warn("session is marked for removal", "probes", c.probes)
			return LivelinessRemove
		}
		return LivelinessProbe
	default:
		return LivelinessRemove
	}
}

// RegisterJob stores the cancellation hook of a read job together with
// the stream its DATA flows on. A previous job with the same request id
// is cancelled first.
func (c *ProxyClient) RegisterJob(requestId wire.RequestId, streamId uint8, cancel func()) {
	c.mu.Lock()
	prev := c.jobs[requestId]
	c.jobs[requestId] = jobHandle{streamId: streamId, cancel: cancel}
	c.mu.Unlock()
	if prev.cancel != nil {
		prev.cancel()
	}
}

// UnregisterJob drops a finished job's hook
func (c *ProxyClient) UnregisterJob(requestId wire.RequestId) {
	c.mu.Lock()
	delete(c.jobs, requestId)
	c.mu.Unlock()
}

// CancelJobs flags every running read job of this client
func (c *ProxyClient) CancelJobs() {
	c.mu.Lock()
	jobs := make([]func(), 0, len(c.jobs))
	for _, job := range c.jobs {
		jobs = append(jobs, job.cancel)
	}
	c.jobs = map[wire.RequestId]jobHandle{}
	c.mu.Unlock()
	for _, cancel := range jobs {
		cancel()
	}
}

// CancelStreamJobs flags the read jobs whose DATA flows on the given
// stream, used when a RESET targets a single stream
func (c *ProxyClient) CancelStreamJobs(streamId uint8) {
	c.mu.Lock()
	jobs := make([]func(), 0)
	for requestId, job := range c.jobs {
		if job.streamId == streamId {
			jobs = append(jobs, job.cancel)
			delete(c.jobs, requestId)
		}
	}
	c.mu.Unlock()
	for _, cancel := range jobs {
		cancel()
	}
}

// Destroy cancels the read jobs and tears down every owned object
func (c *ProxyClient) Destroy() {
	c.CancelJobs()
	c.graph.Clear()
	c.streams.ResetAll()
	c.logger.Info("session destroyed")
}
