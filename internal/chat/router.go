package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

const routerRole = "chat-router"

const (
	stateInitial int32 = iota
	stateRunning
	stateStopped
)

var stateNames = map[int32]string{
	stateInitial: "Initial",
	stateRunning: "Running",
	stateStopped: "Stopped",
}

// Validator 提供频道名与聊天消息的合法性判断。
// 实现必须是无副作用的纯函数。
type Validator interface {
	IsValidChannelName(name string) bool
	IsValidMessage(text string) bool
}

// ChannelInfo 为诊断输出中的一行。
type ChannelInfo struct {
	ID       ChannelID
	Name     string
	Members  int
	IsSystem bool
}

// Router 是频道与连接状态的唯一持有者。
//
// 设计说明：
//   - 所有请求经由同一个请求队列，由单个处理协程按到达顺序逐条处理；
//   - ChannelTable 与 ConsumerRegistry 只在处理协程中读写，因此不需要任何锁；
//   - Connect/Disconnect/Join/Send/Part 只负责入队，结果通过 Session.Deliver 回送；
//   - 查询类接口同样经由请求队列，返回的是某一时刻的一致视图。
type Router struct {
	log.Binder

	validator Validator
	opt       *routerOption

	mailbox   chan request
	channels  *ChannelTable
	consumers *ConsumerRegistry

	state   atomic.Int32
	closing chan struct{}
	done    chan struct{}

	// mu 保证 closing 关闭之后不会再有请求进入 mailbox。
	mu        sync.RWMutex
	stopWatch func() bool

	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewRouter 创建一个尚未启动的 Router。
func NewRouter(validator Validator, opts ...Option) *Router {
	opt := defaultRouterOption()
	for _, o := range opts {
		o(opt)
	}

	r := &Router{
		validator: validator,
		opt:       opt,
		mailbox:   make(chan request, opt.mailboxSize),
		channels:  NewChannelTable(),
		consumers: NewConsumerRegistry(),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.SetLogger(log.With(log.FieldComponent(routerRole)).WithRateGroup(routerRole, 1, 10))
	return r
}

// Start 启动处理协程。
// ctx 结束与调用 Stop 等效：已入队的请求处理完后处理协程退出，之后的请求被丢弃。
func (r *Router) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(stateInitial, stateRunning) {
		return merr.WrapErrServiceNotReady(routerRole, stateNames[r.state.Load()], "start")
	}

	r.stopWatch = context.AfterFunc(ctx, func() {
		r.Logger().Info("chat router context done", zap.Error(ctx.Err()))
		r.shutdown()
	})
	go r.run()
	r.Logger().Info("chat router started", zap.Int("mailboxSize", r.opt.mailboxSize))
	return nil
}

// Stop 停止处理协程并等待其退出。
// 已入队的请求会先被处理完；Stop 之后的请求被丢弃。
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		prev := r.state.Swap(stateStopped)
		r.shutdown()
		if prev == stateInitial {
			close(r.done)
		} else {
			<-r.done
		}
		r.Logger().Info("chat router stopped")
	})
}

// shutdown 关闭 closing，可重复调用。
func (r *Router) shutdown() {
	r.closeOnce.Do(func() {
		r.state.Store(stateStopped)
		r.mu.Lock()
		close(r.closing)
		r.mu.Unlock()
	})
}

func (r *Router) stopped() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Connect 登记一个新连接。ref 已存在时向 sess 投递 20005 错误，原登记保持不变。
func (r *Router) Connect(ref ConnRef, name string, sess Session) {
	r.enqueue(&connectRequest{ref: ref, name: name, sess: sess})
}

// Disconnect 注销连接，并将其 Session 从所有频道中移除。ref 不存在时为空操作。
func (r *Router) Disconnect(ref ConnRef, reason string) {
	r.enqueue(&disconnectRequest{ref: ref, reason: reason})
}

func (r *Router) Join(sess Session, id ChannelID) {
	r.enqueue(&joinRequest{sess: sess, id: id})
}

func (r *Router) Send(sess Session, id ChannelID, text string) {
	r.enqueue(&sendRequest{sess: sess, id: id, text: text})
}

func (r *Router) Part(sess Session, id ChannelID) {
	r.enqueue(&partRequest{sess: sess, id: id})
}

// ListMyChannels 返回 sess 所在的非系统频道 ID，按频道创建顺序排列。
func (r *Router) ListMyChannels(ctx context.Context, sess Session) ([]ChannelID, error) {
	reply := make(chan []ChannelID, 1)
	if err := r.submit(ctx, &listMyChannelsRequest{sess: sess, reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, r, reply)
}

// ListAllChannelNames 返回当前所有非系统频道的显示名，按频道创建顺序排列。
func (r *Router) ListAllChannelNames(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := r.submit(ctx, &listAllChannelNamesRequest{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, r, reply)
}

// Dump 返回所有频道（包括系统频道）的诊断信息。
func (r *Router) Dump(ctx context.Context) ([]ChannelInfo, error) {
	reply := make(chan []ChannelInfo, 1)
	if err := r.submit(ctx, &dumpRequest{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, r, reply)
}

func (r *Router) enqueue(req request) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped() {
		r.Logger().RatedDebug("chat router stopped, request dropped", zap.String("op", req.op()))
		return
	}
	// 持有读锁期间 closing 不会被关闭，处理协程会继续消费 mailbox。
	r.mailbox <- req
}

func (r *Router) submit(ctx context.Context, req request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped() {
		return merr.WrapErrServiceUnavailable("chat router stopped", req.op())
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.mailbox <- req:
		return nil
	}
}

func await[T any](ctx context.Context, r *Router, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, merr.WrapErrServiceUnavailable("chat router stopped")
		}
	}
}

func (r *Router) run() {
	defer close(r.done)
	defer r.stopWatch()
	for {
		select {
		case <-r.closing:
			r.drain()
			return
		case req := <-r.mailbox:
			r.handle(req)
		}
	}
}

// drain 处理 closing 关闭之前已入队的请求。
func (r *Router) drain() {
	for {
		select {
		case req := <-r.mailbox:
			r.handle(req)
		default:
			return
		}
	}
}

func (r *Router) handle(req request) {
	start := time.Now()

	switch req := req.(type) {
	case *connectRequest:
		r.handleConnect(req)
	case *disconnectRequest:
		r.handleDisconnect(req)
	case *joinRequest:
		r.handleJoin(req)
	case *sendRequest:
		r.handleSend(req)
	case *partRequest:
		r.handlePart(req)
	case *listMyChannelsRequest:
		req.reply <- r.listMyChannels(req.sess)
	case *listAllChannelNamesRequest:
		req.reply <- r.listAllChannelNames()
	case *dumpRequest:
		req.reply <- r.dump()
	}

	if r.opt.metrics {
		op := req.op()
		metrics.RouterRequests.WithLabelValues(op).Inc()
		metrics.RouterRequestLatency.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
		metrics.RouterChannels.Set(float64(r.channels.Len()))
		metrics.RouterConsumers.Set(float64(r.consumers.Count()))
	}
}

func (r *Router) handleConnect(req *connectRequest) {
	err := r.consumers.Register(&Consumer{
		Ref:     req.ref,
		Name:    req.name,
		Session: req.sess,
	})
	if err != nil {
		r.userError(req.sess, err)
	}
}

func (r *Router) handleDisconnect(req *disconnectRequest) {
	c, ok := r.consumers.Unregister(req.ref)
	if !ok {
		return
	}

	reaped := r.reap(c.Session)
	r.Logger().Debug("consumer disconnected",
		log.FieldConnRef(string(req.ref)),
		zap.String("name", c.Name),
		zap.String("reason", req.reason),
		zap.Int("reapedChannels", reaped))
}

// reap 将 sess 从所有频道中移除，返回受影响的频道数。
//
// 说明：
//   - 遍历开始前先取频道 ID 快照，每个快照中的频道恰好访问一次；
//   - 遍历过程中因变空而被删除的频道不会影响后续访问；
//   - 剩余成员每个频道只收到一次 PeerParted，离开者本人不再收到通知。
func (r *Router) reap(sess Session) int {
	reaped := 0
	for _, id := range r.channels.Keys() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		if !ch.remove(sess) {
			continue
		}
		r.dropIfEmpty(ch)
		r.broadcast(ch.Members(), PeerParted{Channel: ch.Name, Name: sess.Name()})
		reaped++
	}
	return reaped
}

func (r *Router) handleJoin(req *joinRequest) {
	name, _ := req.id.Resolve()
	if !r.validator.IsValidChannelName(name) {
		r.userError(req.sess, merr.WrapErrChannelNameInvalid(name))
		return
	}

	ch, exists := r.channels.Get(req.id)
	if !exists {
		ch = newChannel(req.id)
	}
	if ch.Contains(req.sess) {
		r.userError(req.sess, merr.WrapErrChannelMemberDuplicate(ch.Name, req.sess.Name()))
		return
	}

	peers := ch.Members()
	ch.add(req.sess)
	if !exists {
		r.channels.Put(ch)
	}

	r.deliver(req.sess, JoinedSelf{Channel: ch.Name, Roster: memberNames(peers)})
	r.broadcast(peers, PeerJoined{Channel: ch.Name, Name: req.sess.Name()})
}

func (r *Router) handleSend(req *sendRequest) {
	name, _ := req.id.Resolve()
	if !r.validator.IsValidMessage(req.text) {
		r.userError(req.sess, merr.WrapErrMessageInvalid(name))
		return
	}

	ch, ok := r.channels.Get(req.id)
	if !ok {
		r.illegalError(merr.WrapErrChannelNotFound(name, "send"), req.sess)
		return
	}
	if !ch.Contains(req.sess) {
		r.illegalError(merr.WrapErrChannelNotMember(ch.Name, req.sess.Name(), "send"), req.sess)
		return
	}

	r.broadcast(ch.Members(), ChatMessage{Channel: ch.Name, From: req.sess.Name(), Text: req.text})
}

// handlePart 处理离开频道。频道不存在时静默忽略。
func (r *Router) handlePart(req *partRequest) {
	ch, ok := r.channels.Get(req.id)
	if !ok {
		return
	}

	ch.remove(req.sess)
	r.dropIfEmpty(ch)
	r.broadcast(ch.Members(), PeerParted{Channel: ch.Name, Name: req.sess.Name()})
	r.deliver(req.sess, PartedSelf{Channel: ch.Name})
}

func (r *Router) dropIfEmpty(ch *Channel) {
	if ch.Len() == 0 {
		r.channels.Delete(ch.ID)
	}
}

func (r *Router) listMyChannels(sess Session) []ChannelID {
	ids := make([]ChannelID, 0)
	r.channels.Range(func(ch *Channel) bool {
		if !ch.IsSystem && ch.Contains(sess) {
			ids = append(ids, ch.ID)
		}
		return true
	})
	return ids
}

func (r *Router) listAllChannelNames() []string {
	names := make([]string, 0)
	r.channels.Range(func(ch *Channel) bool {
		if !ch.IsSystem {
			names = append(names, ch.Name)
		}
		return true
	})
	return names
}

func (r *Router) dump() []ChannelInfo {
	infos := make([]ChannelInfo, 0, r.channels.Len())
	r.channels.Range(func(ch *Channel) bool {
		infos = append(infos, ChannelInfo{
			ID:       ch.ID,
			Name:     ch.Name,
			Members:  ch.Len(),
			IsSystem: ch.IsSystem,
		})
		return true
	})
	return infos
}

// userError 将错误码投递给出错的调用方，不记录服务端日志。
func (r *Router) userError(sess Session, err error) {
	if r.opt.metrics {
		metrics.RouterUserErrors.WithLabelValues(strconv.Itoa(int(merr.Code(err)))).Inc()
	}
	r.deliver(sess, NewErrorEvent(err))
}

// illegalError 只记录服务端日志，不向任何人投递。
func (r *Router) illegalError(err error, sess Session) {
	if r.opt.metrics {
		metrics.RouterIllegalErrors.WithLabelValues(strconv.Itoa(int(merr.Code(err)))).Inc()
	}
	r.Logger().Warn("illegal chat request",
		zap.String("session", sess.Name()),
		zap.Int32("code", merr.Code(err)),
		zap.Error(err))
}

func (r *Router) broadcast(members []Session, ev Event) {
	for _, sess := range members {
		r.deliver(sess, ev)
	}
}

func (r *Router) deliver(sess Session, ev Event) {
	if r.opt.metrics {
		metrics.RouterDeliveries.WithLabelValues(string(ev.Type())).Inc()
	}
	sess.Deliver(ev)
}
