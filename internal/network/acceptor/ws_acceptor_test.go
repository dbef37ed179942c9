package acceptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/chat/validator"
	"github.com/lk2023060901/danmu-garden-chat/internal/json"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/connector"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/router"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

const waitTimeout = 3 * time.Second

type AcceptorSuite struct {
	suite.Suite

	chat     *chat.Router
	acceptor *WSAcceptor
	server   *httptest.Server
	dialer   connector.Connector
}

func (s *AcceptorSuite) SetupTest() {
	s.start(Config{})
}

func (s *AcceptorSuite) start(cfg Config) {
	v := validator.NewDefault()
	s.chat = chat.NewRouter(v)
	s.Require().NoError(s.chat.Start(context.Background()))

	r := router.New()
	s.Require().NoError(router.RegisterChatRoutes(r, s.chat, true))

	cfg.ValidName = v.IsValidChannelName
	acc, err := NewWSAcceptor(cfg, s.chat, r, nil)
	s.Require().NoError(err)
	s.acceptor = acc
	s.server = httptest.NewServer(acc)
	s.dialer = connector.NewWSConnector(connector.Config{})
}

func (s *AcceptorSuite) TearDownTest() {
	s.Require().NoError(s.acceptor.Close())
	s.server.Close()
	s.chat.Stop()
}

func (s *AcceptorSuite) url(name string) string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?name=" + name
}

func (s *AcceptorSuite) dial(name string) connector.ClientConn {
	conn, err := s.dialer.Dial(context.Background(), s.url(name), nil, nil)
	s.Require().NoError(err)
	return conn
}

// expect 读取下行帧直到遇到指定类型，其余帧被跳过。
func (s *AcceptorSuite) expect(conn connector.ClientConn, typ string, out any) {
	timeout := time.After(waitTimeout)
	for {
		select {
		case f, ok := <-conn.Recv():
			s.Require().True(ok, "connection closed while waiting for %s", typ)
			if f.Type != typ {
				continue
			}
			if out != nil {
				s.Require().NoError(json.Unmarshal(f.Data, out))
			}
			return
		case <-timeout:
			s.FailNow("timeout waiting for " + typ)
		}
	}
}

func (s *AcceptorSuite) join(conn connector.ClientConn, channel string) {
	s.Require().NoError(conn.Send(&codec.ClientFrame{
		Op:      codec.OpJoin,
		Channel: &codec.ChannelRef{Kind: "name", Value: channel},
	}))
}

func (s *AcceptorSuite) TestChatRoundTrip() {
	alice := s.dial("alice")
	defer alice.Close()
	bob := s.dial("bob")
	defer bob.Close()

	var joined chat.JoinedSelf
	s.join(alice, "general")
	s.expect(alice, string(chat.EventJoinedSelf), &joined)
	s.Equal("general", joined.Channel)
	s.Empty(joined.Roster)

	s.join(bob, "general")
	s.expect(bob, string(chat.EventJoinedSelf), &joined)
	s.Equal([]string{"alice"}, joined.Roster)

	var peer chat.PeerJoined
	s.expect(alice, string(chat.EventPeerJoined), &peer)
	s.Equal("bob", peer.Name)

	s.Require().NoError(bob.Send(&codec.ClientFrame{
		Op:      codec.OpSend,
		Channel: &codec.ChannelRef{Kind: "name", Value: "general"},
		Text:    "hello",
	}))
	var msg chat.ChatMessage
	s.expect(alice, string(chat.EventChatMessage), &msg)
	s.Equal(chat.ChatMessage{Channel: "general", From: "bob", Text: "hello"}, msg)

	s.Require().NoError(alice.Send(&codec.ClientFrame{Op: codec.OpListMine}))
	var mine codec.MyChannels
	s.expect(alice, codec.TypeMyChannels, &mine)
	s.Equal([]codec.ChannelRef{{Kind: "name", Value: "general"}}, mine.Channels)

	s.Require().NoError(bob.Close())
	var parted chat.PeerParted
	s.expect(alice, string(chat.EventPeerParted), &parted)
	s.Equal(chat.PeerParted{Channel: "general", Name: "bob"}, parted)

	s.Require().NoError(alice.Send(&codec.ClientFrame{Op: codec.OpDump}))
	var dump codec.Channels
	s.expect(alice, codec.TypeChannels, &dump)
	s.Require().Len(dump.Channels, 1)
	s.Equal(1, dump.Channels[0].Members)
}

func (s *AcceptorSuite) TestErrorsAreDeliveredToOffender() {
	alice := s.dial("alice")
	defer alice.Close()

	var e chat.Error
	s.join(alice, "bad name")
	s.expect(alice, string(chat.EventError), &e)
	s.Equal(merr.Code(merr.ErrChannelNameInvalid), e.Code)

	s.Require().NoError(alice.Send(&codec.ClientFrame{Op: 99}))
	s.expect(alice, string(chat.EventError), &e)
	s.Equal(merr.Code(merr.ErrGatewayOpUnknown), e.Code)

	s.Require().NoError(alice.Send(&codec.ClientFrame{
		Op:      codec.OpJoin,
		Channel: &codec.ChannelRef{Kind: "room", Value: "general"},
	}))
	s.expect(alice, string(chat.EventError), &e)
	s.Equal(merr.Code(merr.ErrGatewayFrameInvalid), e.Code)
}

func (s *AcceptorSuite) TestRejectInvalidName() {
	_, resp, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *AcceptorSuite) TestMaxConnections() {
	s.TearDownTest()
	s.start(Config{MaxConnections: 1})

	alice := s.dial("alice")
	defer alice.Close()
	// 收到应答说明 alice 已经占用了唯一的连接名额。
	s.Require().NoError(alice.Send(&codec.ClientFrame{Op: codec.OpListAll}))
	s.expect(alice, codec.TypeAllChannels, nil)

	conn, _, err := websocket.DefaultDialer.Dial(s.url("bob"), nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, _, err = conn.ReadMessage()
	s.True(websocket.IsCloseError(err, websocket.CloseTryAgainLater), "unexpected error: %v", err)
}

func (s *AcceptorSuite) TestSessions() {
	alice := s.dial("alice")
	defer alice.Close()
	s.Require().NoError(alice.Send(&codec.ClientFrame{Op: codec.OpListAll}))
	s.expect(alice, codec.TypeAllChannels, nil)

	sessions := s.acceptor.Sessions()
	s.Require().Len(sessions, 1)
	s.Equal("alice", sessions[0].Name())
}

func TestAcceptor(t *testing.T) {
	suite.Run(t, new(AcceptorSuite))
}

func TestNewWSAcceptor_MissingDeps(t *testing.T) {
	_, err := NewWSAcceptor(Config{}, nil, router.New(), nil)
	require.ErrorIs(t, err, merr.ErrParameterMissing)

	_, err = NewWSAcceptor(Config{}, chat.NewRouter(validator.NewDefault()), nil, nil)
	require.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestServe_StopsOnContextDone(t *testing.T) {
	c := chat.NewRouter(validator.NewDefault())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	acc, err := NewWSAcceptor(Config{}, c, router.New(), nil)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(nil)
	ln := srv.Listener
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- acc.Serve(ctx, ln) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after ctx done")
	}
}
