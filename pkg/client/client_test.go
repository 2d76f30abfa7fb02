package client

import (
	"log/slog"
	"testing"
	"time"

	"github.com/samsamfire/goxrce/pkg/middleware/inproc"
	"github.com/samsamfire/goxrce/pkg/profile"
	"github.com/samsamfire/goxrce/pkg/stream"
	"github.com/samsamfire/goxrce/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func newTestClient() (*ProxyClient, *inproc.Middleware) {
	logger := slog.Default()
	mw := inproc.New(logger, profile.Default(logger))
	key := wire.ClientKey{0xF1, 0xF2, 0xF3, 0xF4}
	return NewProxyClient(logger, key, 0x81, nil, mw, stream.DefaultMTU, stream.Window), mw
}

func TestLivelinessTransitions(t *testing.T) {
	c, mw := newTestClient()
	defer mw.Close()
	now := time.Now()
	threshold := 10 * time.Second

	// Fresh session with recent traffic stays alive
	assert.Equal(t, LivelinessNone, c.LivelinessTick(now, threshold, 3))

	// Past the threshold : dead, then probed until the attempts run out
	later := now.Add(threshold + time.Second)
	assert.Equal(t, LivelinessProbe, c.LivelinessTick(later, threshold, 3))
	assert.Equal(t, LivelinessProbe, c.LivelinessTick(later, threshold, 3))
	assert.Equal(t, LivelinessProbe, c.LivelinessTick(later, threshold, 3))
	assert.Equal(t, LivelinessRemove, c.LivelinessTick(later, threshold, 3))
}

func TestTrafficRevives(t *testing.T) {
	c, mw := newTestClient()
	defer mw.Close()
	now := time.Now()
	threshold := 10 * time.Second
	later := now.Add(threshold + time.Second)

	assert.Equal(t, LivelinessProbe, c.LivelinessTick(later, threshold, 3))
	c.Touch()
	assert.Equal(t, LivelinessNone, c.LivelinessTick(time.Now(), threshold, 3))
}

func TestJobRegistry(t *testing.T) {
	c, mw := newTestClient()
	defer mw.Close()
	requestId := wire.RequestId{0x00, 0x01}

	cancelled := 0
	c.RegisterJob(requestId, 0x80, func() { cancelled++ })
	// A new job under the same request id cancels the previous one
	c.RegisterJob(requestId, 0x80, func() { cancelled += 10 })
	assert.Equal(t, 1, cancelled)

	c.CancelJobs()
	assert.Equal(t, 11, cancelled)
	// Idempotent once drained
	c.CancelJobs()
	assert.Equal(t, 11, cancelled)

	// Stream scoped cancellation only touches matching jobs
	c.RegisterJob(wire.RequestId{0, 2}, 0x80, func() { cancelled += 100 })
	c.RegisterJob(wire.RequestId{0, 3}, 0x01, func() { cancelled += 1000 })
	c.CancelStreamJobs(0x80)
	assert.Equal(t, 111, cancelled)
}

func TestTokensDiffer(t *testing.T) {
	a, mwA := newTestClient()
	defer mwA.Close()
	b, mwB := newTestClient()
	defer mwB.Close()
	assert.NotEqual(t, a.Token(), b.Token())
}
