package inproc

import (
	"log/slog"
	"testing"
	"time"

	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/profile"
	"github.com/samsamfire/goxrce/pkg/wire"
	"github.com/stretchr/testify/assert"
)

var (
	participantId = wire.NewObjectId(1, wire.ObjectKindParticipant)
	topicId       = wire.NewObjectId(1, wire.ObjectKindTopic)
	publisherId   = wire.NewObjectId(1, wire.ObjectKindPublisher)
	subscriberId  = wire.NewObjectId(1, wire.ObjectKindSubscriber)
	writerId      = wire.NewObjectId(1, wire.ObjectKindDataWriter)
	readerId      = wire.NewObjectId(1, wire.ObjectKindDataReader)
)

func newTestMiddleware() *Middleware {
	store := profile.Default(slog.Default())
	store.Add(&profile.Profile{Name: "helloworld_topic", Kind: "topic", Topic: "HelloWorld"})
	return New(slog.Default(), store)
}

func createPubSubPair(t *testing.T, m *Middleware) {
	t.Helper()
	assert.Nil(t, m.CreateByRef(wire.ObjectKindParticipant, participantId, nil, 0, "default_xrce_participant"))
	assert.Nil(t, m.CreateByRef(wire.ObjectKindTopic, topicId, []wire.ObjectId{participantId}, 0, "helloworld_topic"))
	assert.Nil(t, m.CreateByXml(wire.ObjectKindPublisher, publisherId, []wire.ObjectId{participantId}, 0, ""))
	assert.Nil(t, m.CreateByXml(wire.ObjectKindSubscriber, subscriberId, []wire.ObjectId{participantId}, 0, ""))
	assert.Nil(t, m.CreateByXml(wire.ObjectKindDataWriter, writerId, []wire.ObjectId{publisherId, topicId}, 0, ""))
	assert.Nil(t, m.CreateByXml(wire.ObjectKindDataReader, readerId, []wire.ObjectId{subscriberId, topicId}, 0, ""))
}

func TestWriteReachesReader(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	createPubSubPair(t, m)

	received := make(chan []byte, 1)
	cancel, err := m.Read(readerId, func(data []byte) { received <- data })
	assert.Nil(t, err)
	defer cancel()

	assert.Nil(t, m.Write(writerId, []byte("hello")))
	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	createPubSubPair(t, m)

	received := make(chan []byte, 8)
	cancel, err := m.Read(readerId, func(data []byte) { received <- data })
	assert.Nil(t, err)
	cancel()
	assert.Nil(t, m.Write(writerId, []byte("late")))
	select {
	case <-received:
		t.Fatal("sample delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnknownRef(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	err := m.CreateByRef(wire.ObjectKindParticipant, participantId, nil, 0, "no_such_profile")
	assert.Equal(t, middleware.ErrUnresolvableRef, err)
}

func TestMatch(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	assert.Nil(t, m.CreateByRef(wire.ObjectKindParticipant, participantId, nil, 0, "default_xrce_participant"))
	assert.True(t, m.MatchRef(participantId, "default_xrce_participant"))
	assert.False(t, m.MatchRef(participantId, "other_participant"))
}

func TestRequesterReplierRouting(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	requestTopic := wire.NewObjectId(5, wire.ObjectKindTopic)
	replyTopic := wire.NewObjectId(6, wire.ObjectKindTopic)
	requesterId := wire.NewObjectId(1, wire.ObjectKindRequester)
	replierId := wire.NewObjectId(1, wire.ObjectKindReplier)

	assert.Nil(t, m.CreateByRef(wire.ObjectKindParticipant, participantId, nil, 0, "default_xrce_participant"))
	assert.Nil(t, m.CreateByBinary(wire.ObjectKindTopic, requestTopic, []wire.ObjectId{participantId}, 0, []byte("svc_request")))
	assert.Nil(t, m.CreateByBinary(wire.ObjectKindTopic, replyTopic, []wire.ObjectId{participantId}, 0, []byte("svc_reply")))
	parents := []wire.ObjectId{participantId, requestTopic, replyTopic}
	assert.Nil(t, m.CreateByXml(wire.ObjectKindRequester, requesterId, parents, 0, ""))
	assert.Nil(t, m.CreateByXml(wire.ObjectKindReplier, replierId, parents, 0, ""))

	requests := make(chan []byte, 1)
	replies := make(chan []byte, 1)
	cancelReq, err := m.Read(replierId, func(data []byte) { requests <- data })
	assert.Nil(t, err)
	defer cancelReq()
	cancelRep, err := m.Read(requesterId, func(data []byte) { replies <- data })
	assert.Nil(t, err)
	defer cancelRep()

	// Requester writes a request, replier receives it and answers
	assert.Nil(t, m.Write(requesterId, []byte("ping")))
	select {
	case data := <-requests:
		assert.Equal(t, []byte("ping"), data)
	case <-time.After(time.Second):
		t.Fatal("request was not delivered")
	}
	assert.Nil(t, m.Write(replierId, []byte("pong")))
	select {
	case data := <-replies:
		assert.Equal(t, []byte("pong"), data)
	case <-time.After(time.Second):
		t.Fatal("reply was not delivered")
	}
}

func TestWriteWrongKind(t *testing.T) {
	m := newTestMiddleware()
	defer m.Close()
	assert.Nil(t, m.CreateByRef(wire.ObjectKindParticipant, participantId, nil, 0, "default_xrce_participant"))
	assert.Equal(t, middleware.ErrNotWritable, m.Write(participantId, []byte{1}))
	_, err := m.Read(participantId, func([]byte) {})
	assert.Equal(t, middleware.ErrNotReadable, err)
}
