// Package session 为每个浏览器维护临时邮箱会话。
//
// 每个 Engine 由一个协程独占 State，所有入口（用户操作、分配结果、拉取结果、推送、
// 过期检查、快照）都是同一通道上的事件。网络操作在其他协程执行，完成后带着发起时的
// epoch 和地址 id 回到事件循环，过期的回复直接丢弃。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempmail/web/internal/allocator"
	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
	"tempmail/web/internal/persist"
)

var (
	// ErrGenerateInProgress 已有生成请求在进行
	ErrGenerateInProgress = errors.New("generate already in progress")
	// ErrEngineStopped 会话引擎已停止
	ErrEngineStopped = errors.New("session engine stopped")
	// ErrRateLimited 生成过于频繁
	ErrRateLimited = fmt.Errorf("%w: too many requests", allocator.ErrAllocation)
)

// Runner 执行后台任务，通常是协程池
type Runner interface {
	TrySubmit(task func()) bool
}

// Deps 引擎依赖，由 Manager 在所有引擎间共享
type Deps struct {
	Allocator allocator.Allocator
	Store     persist.Store
	Source    inbox.Source
	Feed      inbox.Feed
	Runner    Runner
	Observer  Observer
	Recorder  Recorder
	Log       *zap.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Options 单个引擎的参数
type Options struct {
	ExpiryCheckInterval time.Duration
	GenerateRate        float64
	GenerateBurst       int
}

const ioTimeout = 15 * time.Second

// Engine 单个浏览器的会话引擎
type Engine struct {
	browserID string
	deps      Deps
	opts      Options
	limiter   *rate.Limiter
	log       *zap.Logger

	events chan func()
	quit   chan struct{}
	done   chan struct{}

	stopOnce   sync.Once
	lastActive atomic.Int64

	// 以下字段只在引擎协程中访问
	state  State
	sub    inbox.Subscription
	writer *writer
}

// NewEngine 创建引擎，需要调用 Start 启动
func NewEngine(browserID string, deps Deps, opts Options) *Engine {
	deps = deps.withDefaults()
	if opts.ExpiryCheckInterval <= 0 {
		opts.ExpiryCheckInterval = 10 * time.Second
	}

	limit := rate.Inf
	if opts.GenerateRate > 0 {
		limit = rate.Limit(opts.GenerateRate)
	}
	burst := opts.GenerateBurst
	if burst <= 0 {
		burst = 1
	}

	e := &Engine{
		browserID: browserID,
		deps:      deps,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, burst),
		log:       deps.Log.With(zap.String("browser_id", browserID)),
		events:    make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.touch()
	return e
}

// BrowserID 返回引擎所属的浏览器标识
func (e *Engine) BrowserID() string {
	return e.browserID
}

// Start 恢复持久化的地址并启动事件循环
//
// 已过期的地址会从存储中删除且不被采用。
func (e *Engine) Start(ctx context.Context) {
	e.writer = newWriter(e.browserID, e.deps.Store, e.log)
	e.restore(ctx)
	e.deps.Recorder.SessionOpened()
	go e.loop()
}

// Stop 停止事件循环，取消订阅并等待持久化写入完成
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
}

// Done 在引擎完全停止后关闭
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// IdleSince 返回最后一次被调用的时间
func (e *Engine) IdleSince() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

func (e *Engine) touch() {
	e.lastActive.Store(e.deps.Now().UnixNano())
}

func (e *Engine) restore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	addr, err := e.deps.Store.Load(ctx, e.browserID)
	if errors.Is(err, persist.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Warn("failed to restore address", zap.Error(err))
		return
	}

	if !addr.Valid(e.deps.Now()) {
		e.log.Debug("discarding expired persisted address", zap.String("address_id", addr.ID))
		if err := e.deps.Store.Remove(ctx, e.browserID); err != nil {
			e.log.Warn("failed to remove expired address", zap.Error(err))
		}
		return
	}

	e.state.reset(addr)
	e.log.Debug("address restored", zap.String("address_id", addr.ID))
	e.attach()
}

func (e *Engine) loop() {
	ticker := time.NewTicker(e.opts.ExpiryCheckInterval)
	defer ticker.Stop()

	defer func() {
		if e.sub != nil {
			if err := e.sub.Close(); err != nil {
				e.log.Warn("failed to close subscription", zap.Error(err))
			}
			e.sub = nil
		}
		e.writer.close()
		e.deps.Recorder.SessionClosed()
		close(e.done)
	}()

	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.events:
			fn()
		case <-ticker.C:
			e.expireIfStale()
		}
	}
}

// post 把事件放入循环，引擎停止后静默丢弃
func (e *Engine) post(fn func()) bool {
	select {
	case e.events <- fn:
		return true
	case <-e.quit:
		return false
	}
}

// call 把事件放入循环并等待结果
func call[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var zero T
	e.touch()

	reply := make(chan T, 1)
	if !e.post(func() { reply <- fn() }) {
		return zero, ErrEngineStopped
	}

	select {
	case v := <-reply:
		return v, nil
	case <-e.quit:
		return zero, ErrEngineStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type generateResult struct {
	addr *domain.TemporaryAddress
	err  error
}

// Generate 申请新的临时邮箱并替换当前地址
//
// 成功后邮件列表和选中项清空，随后重新订阅并拉取新地址的邮件。
func (e *Engine) Generate(ctx context.Context) (*domain.TemporaryAddress, error) {
	e.touch()

	reply := make(chan generateResult, 1)
	ok := e.post(func() {
		if e.state.Generating {
			reply <- generateResult{err: ErrGenerateInProgress}
			return
		}
		if !e.limiter.AllowN(e.deps.Now(), 1) {
			e.deps.Recorder.Generation(false)
			e.emit(domain.NoticeGenerateFailed)
			reply <- generateResult{err: ErrRateLimited}
			return
		}

		e.state.Generating = true
		e.changed()

		go func() {
			allocCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ioTimeout)
			defer cancel()

			addr, err := e.deps.Allocator.Allocate(allocCtx)
			if !e.post(func() { reply <- e.finishGenerate(addr, err) }) {
				reply <- generateResult{err: ErrEngineStopped}
			}
		}()
	})
	if !ok {
		return nil, ErrEngineStopped
	}

	select {
	case r := <-reply:
		return r.addr, r.err
	case <-e.quit:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) finishGenerate(addr *domain.TemporaryAddress, err error) generateResult {
	e.state.Generating = false

	if err == nil {
		err = addr.Validate()
	}
	if err == nil && !addr.Valid(e.deps.Now()) {
		err = fmt.Errorf("%w: address %s already expired", allocator.ErrAllocation, addr.ID)
	}
	if err != nil {
		e.log.Warn("failed to generate address", zap.Error(err))
		e.deps.Recorder.Generation(false)
		e.emit(domain.NoticeGenerateFailed)
		e.changed()
		return generateResult{err: err}
	}

	e.detach()
	e.state.reset(addr)
	e.writer.save(addr)
	e.deps.Recorder.Generation(true)
	e.log.Info("address generated",
		zap.String("address_id", addr.ID),
		zap.Time("expires_at", addr.ExpiresAt),
	)
	e.emit(domain.NoticeGenerated)
	e.attach()
	e.changed()

	copied := *addr
	return generateResult{addr: &copied}
}

// ExpireIfStale 地址已过期时清空会话，返回是否执行了清理
func (e *Engine) ExpireIfStale(ctx context.Context) (bool, error) {
	return call(ctx, e, e.expireIfStale)
}

func (e *Engine) expireIfStale() bool {
	addr := e.state.Address
	if addr == nil || addr.Valid(e.deps.Now()) {
		return false
	}

	e.detach()
	e.state.reset(nil)
	e.writer.remove()
	e.deps.Recorder.Expiration()
	e.log.Info("address expired", zap.String("address_id", addr.ID))
	e.emit(domain.NoticeAddressExpired)
	e.changed()
	return true
}

// Select 选中一封邮件，id 不在列表中时不显示详情
func (e *Engine) Select(ctx context.Context, id string) error {
	_, err := call(ctx, e, func() struct{} {
		if e.state.SelectedID != id {
			e.state.SelectedID = id
			e.changed()
		}
		return struct{}{}
	})
	return err
}

// ClearSelection 回到列表视图
func (e *Engine) ClearSelection(ctx context.Context) error {
	return e.Select(ctx, "")
}

// Snapshot 返回当前状态副本，并取出未能实时送达的通知
//
// 构建副本前先做一次过期检查，已过期的地址不会出现在快照中。
func (e *Engine) Snapshot(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		e.expireIfStale()
		v := e.state.view(e.browserID, e.deps.Now())
		v.Notices = e.state.drainNotices()
		return v
	})
}

// attach 为当前地址建立订阅，订阅就绪后拉取全部邮件
//
// 先订阅再拉取，订阅建立前写入的邮件由拉取结果覆盖，之后的由推送覆盖。
func (e *Engine) attach() {
	addr := e.state.Address
	if addr == nil {
		return
	}
	epoch, addressID := e.state.epoch, addr.ID

	if e.deps.Source != nil {
		e.state.Fetching = true
	}
	if e.deps.Feed == nil {
		e.load(epoch, addressID)
		return
	}
	e.subscribe(epoch, addressID)
}

// detach 取消当前订阅，不等待其完成
func (e *Engine) detach() {
	if e.sub == nil {
		return
	}
	sub := e.sub
	e.sub = nil
	go func() {
		if err := sub.Close(); err != nil {
			e.log.Warn("failed to close subscription", zap.Error(err))
		}
	}()
}

func (e *Engine) subscribe(epoch uint64, addressID string) {
	handler := func(msg domain.Message) {
		e.post(func() { e.handlePush(epoch, addressID, msg) })
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()

		sub, err := e.deps.Feed.Subscribe(ctx, addressID, handler)
		if err != nil {
			e.log.Error("failed to subscribe", zap.String("address_id", addressID), zap.Error(err))
		}

		adopted := e.post(func() {
			if !e.state.current(epoch, addressID) {
				if sub != nil {
					go sub.Close()
				}
				return
			}
			if sub != nil {
				if e.sub != nil {
					go e.sub.Close()
				}
				e.sub = sub
			}
			// 订阅失败时仍然拉取
			e.load(epoch, addressID)
		})
		if !adopted && sub != nil {
			_ = sub.Close()
		}
	}()
}

func (e *Engine) load(epoch uint64, addressID string) {
	if e.deps.Source == nil {
		return
	}
	e.state.Fetching = true
	e.changed()

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()

		list, err := e.deps.Source.ListByAddress(ctx, addressID)
		e.post(func() { e.finishLoad(epoch, addressID, list, err) })
	}

	if e.deps.Runner == nil || !e.deps.Runner.TrySubmit(task) {
		go task()
	}
}

func (e *Engine) finishLoad(epoch uint64, addressID string, list []domain.Message, err error) {
	if !e.state.current(epoch, addressID) {
		return
	}
	if err != nil {
		e.deps.Recorder.Load(false)
		e.state.Fetching = false
		e.state.pushedDuringLoad = nil
		e.log.Error("failed to fetch messages", zap.String("address_id", addressID), zap.Error(err))
		e.changed()
		return
	}

	filtered := list[:0:0]
	for _, m := range list {
		if m.TempEmailID == addressID {
			filtered = append(filtered, m)
		}
	}

	e.deps.Recorder.Load(true)
	e.state.replace(filtered)
	e.changed()
}

func (e *Engine) handlePush(epoch uint64, addressID string, msg domain.Message) {
	if !e.state.current(epoch, addressID) || msg.TempEmailID != addressID {
		e.deps.Recorder.Push(PushStale)
		return
	}
	if e.state.indexOf(msg.ID) >= 0 {
		e.deps.Recorder.Push(PushDuplicate)
		return
	}

	e.state.prepend(msg)
	e.deps.Recorder.Push(PushAccepted)
	e.emit(domain.NoticeMailArrived)
	e.changed()
}

// emit 推送通知，没有在线连接时留到下一次快照
func (e *Engine) emit(n domain.Notice) {
	ev := Event{
		Kind: EventNotice,
		Notice: &NoticePayload{
			Kind:        string(n.Kind),
			Title:       n.Title,
			Description: n.Description,
			Destructive: n.Destructive(),
		},
	}
	if !e.deps.Observer.Notify(e.browserID, ev) {
		e.state.queueNotice(n)
	}
}

func (e *Engine) changed() {
	e.deps.Observer.Notify(e.browserID, Event{Kind: EventState})
}
