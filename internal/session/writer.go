package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/persist"
)

const writeTimeout = 5 * time.Second

type writeOp struct {
	addr *domain.TemporaryAddress // nil 表示删除
}

// writer 按提交顺序执行持久化写入，提交本身不阻塞
type writer struct {
	browserID string
	store     persist.Store
	log       *zap.Logger

	mu     sync.Mutex
	queue  []writeOp
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newWriter(browserID string, store persist.Store, log *zap.Logger) *writer {
	w := &writer{
		browserID: browserID,
		store:     store,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) save(addr *domain.TemporaryAddress) {
	copied := *addr
	w.enqueue(writeOp{addr: &copied})
}

func (w *writer) remove() {
	w.enqueue(writeOp{})
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, op)
	w.mu.Unlock()
	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close 执行完已提交的写入后返回
func (w *writer) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	<-w.done
}

func (w *writer) run() {
	defer close(w.done)
	for range w.wake {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				closed := w.closed
				w.mu.Unlock()
				if closed {
					return
				}
				break
			}
			op := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			w.apply(op)
		}
	}
}

func (w *writer) apply(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if op.addr != nil {
		err = w.store.Save(ctx, w.browserID, op.addr)
	} else {
		err = w.store.Remove(ctx, w.browserID)
	}
	if err != nil {
		w.log.Error("failed to persist address",
			zap.Bool("remove", op.addr == nil),
			zap.Error(err),
		)
	}
}
