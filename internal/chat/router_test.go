package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

type RouterSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	router *Router
	logs   *observer.ObservedLogs
}

func (s *RouterSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Second)
	s.router = NewRouter(stubValidator{}, WithMailboxSize(16), WithMetrics(false))

	core, logs := observer.New(zap.DebugLevel)
	s.router.SetLogger(&log.MLogger{Logger: zap.New(core)})
	s.logs = logs

	s.Require().NoError(s.router.Start(s.ctx))
}

func (s *RouterSuite) TearDownTest() {
	s.router.Stop()
	s.cancel()
}

// sync 借助查询请求等待此前入队的请求全部处理完毕。
func (s *RouterSuite) sync() []string {
	names, err := s.router.ListAllChannelNames(s.ctx)
	s.Require().NoError(err)
	return names
}

func (s *RouterSuite) connect(ref ConnRef, name string) *recordingSession {
	sess := newRecordingSession(name)
	s.router.Connect(ref, name, sess)
	return sess
}

func (s *RouterSuite) dump() map[ChannelID]ChannelInfo {
	infos, err := s.router.Dump(s.ctx)
	s.Require().NoError(err)
	result := make(map[ChannelID]ChannelInfo, len(infos))
	for _, info := range infos {
		result[info.ID] = info
	}
	return result
}

func (s *RouterSuite) illegalLogs() int {
	return s.logs.FilterMessage("illegal chat request").Len()
}

func (s *RouterSuite) TestScenario() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	general := Named("general")

	s.router.Join(a, general)
	s.Equal([]string{"general"}, s.sync())
	s.Equal([]Event{JoinedSelf{Channel: "general", Roster: []string{}}}, a.Take())

	s.router.Join(b, general)
	s.sync()
	s.Equal([]Event{JoinedSelf{Channel: "general", Roster: []string{"alice"}}}, b.Take())
	s.Equal([]Event{PeerJoined{Channel: "general", Name: "bob"}}, a.Take())

	s.router.Send(a, general, "hi")
	s.sync()
	msg := ChatMessage{Channel: "general", From: "alice", Text: "hi"}
	s.Equal([]Event{msg}, a.Take())
	s.Equal([]Event{msg}, b.Take())

	s.router.Part(b, general)
	s.Equal([]string{"general"}, s.sync())
	s.Equal([]Event{PeerParted{Channel: "general", Name: "bob"}}, a.Take())
	s.Equal([]Event{PartedSelf{Channel: "general"}}, b.Take())

	s.router.Part(a, general)
	s.Empty(s.sync())
	s.Equal([]Event{PartedSelf{Channel: "general"}}, a.Take())
	s.Empty(b.Events())
}

func (s *RouterSuite) TestJoinTwice() {
	a := s.connect("ra", "alice")
	s.router.Join(a, Named("general"))
	s.router.Join(a, Named("general"))
	s.sync()

	events := a.Take()
	s.Require().Len(events, 2)
	errEv, ok := events[1].(Error)
	s.Require().True(ok)
	s.Equal(merr.Code(merr.ErrChannelMemberDuplicate), errEv.Code)
	s.Equal(int32(20002), errEv.Code)
	s.Equal(1, s.dump()[Named("general")].Members)
}

func (s *RouterSuite) TestJoinRosterOrder() {
	names := []string{"a", "b", "c", "d"}
	sessions := make([]*recordingSession, 0, len(names))
	for _, name := range names {
		sess := s.connect(ConnRef("r-"+name), name)
		s.router.Join(sess, Named("lobby"))
		sessions = append(sessions, sess)
	}
	s.sync()

	last := sessions[3].Take()
	s.Equal([]Event{JoinedSelf{Channel: "lobby", Roster: []string{"a", "b", "c"}}}, last)

	// 每个已有成员收到的 PeerJoined 条数等于其后加入的人数。
	for i, sess := range sessions[:3] {
		events := sess.Take()
		s.Len(events, 1+(3-i), sess.Name())
	}
}

func (s *RouterSuite) TestJoinInvalidName() {
	a := s.connect("ra", "alice")
	s.router.Join(a, Named("bad name"))
	s.router.Join(a, Named(""))
	s.Empty(s.sync())

	events := a.Take()
	s.Require().Len(events, 2)
	for _, ev := range events {
		s.Equal(EventError, ev.Type())
		s.Equal(int32(20001), ev.(Error).Code)
	}
	s.Empty(s.dump())
	s.Zero(s.illegalLogs())
}

func (s *RouterSuite) TestSendReachesMembersOnly() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	outsider := s.connect("rc", "carol")
	s.router.Join(a, Named("general"))
	s.router.Join(b, Named("general"))
	s.router.Join(outsider, Named("random"))
	s.sync()
	a.Take()
	b.Take()
	outsider.Take()

	s.router.Send(b, Named("general"), "hello")
	s.sync()

	msg := ChatMessage{Channel: "general", From: "bob", Text: "hello"}
	s.Equal([]Event{msg}, a.Take())
	s.Equal([]Event{msg}, b.Take())
	s.Empty(outsider.Take())
}

func (s *RouterSuite) TestSendInvalidMessage() {
	a := s.connect("ra", "alice")
	s.router.Join(a, Named("general"))
	s.sync()
	a.Take()

	s.router.Send(a, Named("general"), "   ")
	s.sync()
	s.Equal([]Event{NewErrorEvent(merr.WrapErrMessageInvalid("general"))}, a.Take())
	s.Zero(s.illegalLogs())
}

func (s *RouterSuite) TestSendNotMember() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	s.router.Join(a, Named("general"))
	s.sync()
	a.Take()

	s.router.Send(b, Named("general"), "sneaky")
	s.sync()
	s.Empty(a.Events())
	s.Empty(b.Events())
	s.Equal(1, s.illegalLogs())

	entry := s.logs.FilterMessage("illegal chat request").All()[0]
	s.EqualValues(20101, entry.ContextMap()["code"])
}

func (s *RouterSuite) TestSendChannelNotFound() {
	a := s.connect("ra", "alice")
	s.router.Send(a, Named("nowhere"), "hello?")
	s.sync()
	s.Empty(a.Events())
	s.Equal(1, s.illegalLogs())

	// 非法请求之后 Router 仍然正常服务。
	s.router.Join(a, Named("nowhere"))
	s.Equal([]string{"nowhere"}, s.sync())
}

func (s *RouterSuite) TestPartMissingChannel() {
	a := s.connect("ra", "alice")
	s.router.Part(a, Named("ghost"))
	s.sync()
	s.Empty(a.Events())
	s.Zero(s.illegalLogs())
}

func (s *RouterSuite) TestPartNonMember() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	s.router.Join(a, Named("general"))
	s.sync()
	a.Take()

	s.router.Part(b, Named("general"))
	s.Equal([]string{"general"}, s.sync())
	s.Equal([]Event{PeerParted{Channel: "general", Name: "bob"}}, a.Take())
	s.Equal([]Event{PartedSelf{Channel: "general"}}, b.Take())
	s.Equal(1, s.dump()[Named("general")].Members)
}

func (s *RouterSuite) TestPartLastMemberRemovesChannel() {
	a := s.connect("ra", "alice")
	s.router.Join(a, Named("general"))
	s.router.Join(a, Named("random"))
	s.Equal([]string{"general", "random"}, s.sync())

	s.router.Part(a, Named("general"))
	s.Equal([]string{"random"}, s.sync())
}

func (s *RouterSuite) TestDisconnectReapsEveryChannel() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	c := s.connect("rc", "carol")

	// alice 是 solo 唯一的成员，遍历途中 solo 会被删除。
	s.router.Join(a, Named("solo"))
	s.router.Join(a, Named("general"))
	s.router.Join(b, Named("general"))
	s.router.Join(c, Named("general"))
	s.router.Join(a, Named("random"))
	s.router.Join(b, Named("random"))
	s.router.Join(a, SystemToken("world"))
	s.router.Join(c, SystemToken("world"))
	s.router.Join(b, Named("bobs"))
	s.sync()
	a.Take()
	b.Take()
	c.Take()

	s.router.Disconnect("ra", "socket closed")
	s.Equal([]string{"general", "random", "bobs"}, s.sync())

	s.Equal([]Event{
		PeerParted{Channel: "general", Name: "alice"},
		PeerParted{Channel: "random", Name: "alice"},
	}, b.Take())
	s.Equal([]Event{
		PeerParted{Channel: "general", Name: "alice"},
		PeerParted{Channel: "World", Name: "alice"},
	}, c.Take())
	s.Empty(a.Events())

	dump := s.dump()
	s.Equal(2, dump[Named("general")].Members)
	s.Equal(1, dump[SystemToken("world")].Members)
	s.NotContains(dump, Named("solo"))

	// 再次断开为空操作。
	s.router.Disconnect("ra", "again")
	s.sync()
	s.Empty(b.Events())
	s.Empty(c.Events())
}

func (s *RouterSuite) TestListMyChannelsExcludesSystem() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	s.router.Join(b, Named("other"))
	s.router.Join(a, Named("general"))
	s.router.Join(a, SystemToken("world"))
	s.router.Join(a, SystemToken("unknown"))
	s.router.Join(a, Named("random"))

	ids, err := s.router.ListMyChannels(s.ctx, a)
	s.Require().NoError(err)
	s.Equal([]ChannelID{Named("general"), Named("random")}, ids)
	s.Equal([]string{"other", "general", "random"}, s.sync())

	ids, err = s.router.ListMyChannels(s.ctx, newRecordingSession("nobody"))
	s.Require().NoError(err)
	s.NotNil(ids)
	s.Empty(ids)
}

func (s *RouterSuite) TestSystemChannels() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	s.router.Join(a, SystemToken("guild"))
	s.router.Join(b, SystemToken("party"))
	s.router.Join(b, SystemToken("local"))
	s.sync()

	// 系统频道可以直接加入，未知令牌显示为 Local，但各自独立。
	s.Equal([]Event{JoinedSelf{Channel: "Guild", Roster: []string{}}}, a.Take())
	s.Equal([]Event{
		JoinedSelf{Channel: "Local", Roster: []string{}},
		JoinedSelf{Channel: "Local", Roster: []string{}},
	}, b.Take())

	dump := s.dump()
	s.Len(dump, 3)
	s.True(dump[SystemToken("party")].IsSystem)
	s.Equal("Local", dump[SystemToken("party")].Name)

	s.router.Part(a, SystemToken("guild"))
	s.sync()
	s.Equal([]Event{PartedSelf{Channel: "Guild"}}, a.Take())
}

func (s *RouterSuite) TestConnectTwice() {
	first := s.connect("r1", "alice")
	second := s.connect("r1", "mallory")
	s.router.Join(first, Named("general"))
	s.sync()

	s.Len(first.Take(), 1)
	events := second.Take()
	s.Require().Len(events, 1)
	s.Equal(int32(20005), events[0].(Error).Code)

	// 原登记保持不变：断开时回收的是 alice。
	s.router.Disconnect("r1", "closed")
	s.Empty(s.sync())
}

func (s *RouterSuite) TestStop() {
	a := s.connect("ra", "alice")
	s.router.Join(a, Named("general"))
	s.router.Stop()

	// Stop 之前入队的请求已处理完。
	s.Len(a.Events(), 1)

	_, err := s.router.ListAllChannelNames(s.ctx)
	s.ErrorIs(err, merr.ErrServiceUnavailable)

	s.router.Join(a, Named("late"))
	s.Len(a.Events(), 1)

	s.ErrorIs(s.router.Start(s.ctx), merr.ErrServiceNotReady)
}

func (s *RouterSuite) TestStopDropsLateRequests() {
	a := newRecordingSession("alice")
	s.router.Stop()

	for i := 0; i < 4*cap(s.router.mailbox); i++ {
		s.router.Join(a, Named("late"))
	}

	s.Empty(a.Events())
	s.Zero(len(s.router.mailbox))
	s.Equal(4*cap(s.router.mailbox), s.logs.FilterMessage("chat router stopped, request dropped").Len())
}

func (s *RouterSuite) TestDisconnectTwice() {
	a := s.connect("ra", "alice")
	b := s.connect("rb", "bob")
	s.router.Join(a, Named("general"))
	s.router.Join(b, Named("general"))
	s.sync()
	b.Take()

	s.router.Disconnect("ra", "closed")
	s.router.Disconnect("ra", "closed")
	s.Equal([]string{"general"}, s.sync())

	s.Equal([]Event{PeerParted{Channel: "general", Name: "alice"}}, b.Take())
	s.Equal(1, s.dump()[Named("general")].Members)
}

func (s *RouterSuite) TestQueryContextCanceled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.router.Dump(ctx)
	s.ErrorIs(err, context.Canceled)
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func TestRouter_StopBeforeStart(t *testing.T) {
	r := NewRouter(stubValidator{}, WithMetrics(false))
	r.Stop()

	_, err := r.ListMyChannels(context.Background(), newRecordingSession("a"))
	if !merr.IsRetryableErr(err) {
		t.Fatalf("expected retriable service unavailable error, got %v", err)
	}
}

func TestRouter_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(stubValidator{}, WithMetrics(false))
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	r.Stop()

	_, err := r.Dump(context.Background())
	if err == nil {
		t.Fatal("expected error after router exit")
	}
}

func TestRouter_ContextCanceledDropsRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(stubValidator{}, WithMailboxSize(4), WithMetrics(false))
	require.NoError(t, r.Start(ctx))

	cancel()
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("router did not exit after ctx was canceled")
	}

	sess := newRecordingSession("alice")
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		r.Connect("ra", "alice", sess)
		for i := 0; i < 10; i++ {
			r.Join(sess, Named("c"))
			r.Send(sess, Named("c"), "hi")
			r.Part(sess, Named("c"))
		}
		r.Disconnect("ra", "closed")
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("requests blocked after ctx was canceled")
	}
	assert.Empty(t, sess.Events())

	_, err := r.ListAllChannelNames(context.Background())
	assert.ErrorIs(t, err, merr.ErrServiceUnavailable)
	assert.ErrorIs(t, r.Start(context.Background()), merr.ErrServiceNotReady)

	// Stop 在 ctx 结束后仍可调用且立即返回。
	r.Stop()
}
