package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	logging "github.com/okian/arena/pkg/logger"
)

func init() {
	_ = logging.Init()
}

type mockSource struct {
	ch chan queue.Job
}

func newMockSource() *mockSource { return &mockSource{ch: make(chan queue.Job, 10)} }

func (m *mockSource) Dequeue(context.Context) <-chan queue.Job { return m.ch }

type collector struct {
	mu   sync.Mutex
	seen map[int64][]int64
	fail map[int64]bool
}

func newCollector() *collector {
	return &collector{seen: make(map[int64][]int64), fail: make(map[int64]bool)}
}

func (c *collector) Handle(_ context.Context, j queue.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[j.Revision] {
		return errors.New("mirror unavailable")
	}
	if j.Revision < 0 {
		panic("negative revision")
	}
	c.seen[j.CompetitionID] = append(c.seen[j.CompetitionID], j.Revision)
	return nil
}

func (c *collector) revisions(comp int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.seen[comp]...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a source", t, func() {
		src := newMockSource()
		col := newCollector()
		w := worker.NewInMemoryWorker(src, col, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs arrive, including failing and panicking ones", func() {
			col.fail[2] = true
			for _, rev := range []int64{1, 2, -1, 3} {
				src.ch <- queue.Job{ID: "j", CompetitionID: 5, Revision: rev}
			}
			close(src.ch)

			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)

			convey.Convey("Then the worker survives and keeps order", func() {
				convey.So(col.revisions(5), convey.ShouldResemble, []int64{1, 3})
			})
		})
	})

	convey.Convey("Given a worker that never stops", t, func() {
		src := newMockSource()
		w := worker.NewInMemoryWorker(src, newCollector())
		go w.Run(context.Background())

		convey.Convey("Shutdown honours its context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			convey.So(w.Shutdown(ctx), convey.ShouldNotBeNil)
			close(src.ch)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool with several shards", t, func() {
		col := newCollector()
		pool := worker.NewPool(4, 100, col)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)
		pool.Start(ctx)

		convey.Convey("When jobs for many competitions are submitted", func() {
			for rev := int64(1); rev <= 20; rev++ {
				for comp := int64(1); comp <= 6; comp++ {
					convey.So(pool.Submit(ctx, queue.Job{CompetitionID: comp, Revision: rev}), convey.ShouldBeTrue)
				}
			}
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then each competition sees its jobs in order", func() {
				for comp := int64(1); comp <= 6; comp++ {
					revs := col.revisions(comp)
					convey.So(len(revs), convey.ShouldEqual, 20)
					for i, r := range revs {
						convey.So(r, convey.ShouldEqual, int64(i+1))
					}
				}
				convey.So(pool.Len(context.Background()), convey.ShouldEqual, 0)
				convey.So(pool.Shards(), convey.ShouldEqual, 4)
			})

			convey.Convey("Then submissions after shutdown are refused", func() {
				convey.So(pool.Submit(ctx, queue.Job{CompetitionID: 1}), convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("HandlerFunc adapts functions", t, func() {
		called := false
		h := worker.HandlerFunc(func(context.Context, queue.Job) error { called = true; return nil })
		convey.So(h.Handle(context.Background(), queue.Job{}), convey.ShouldBeNil)
		convey.So(called, convey.ShouldBeTrue)
	})
}
