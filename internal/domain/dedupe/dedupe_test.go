package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/domain/dedupe"
)

func TestWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty window", t, func() {
		var d dedupe.Deduper = dedupe.NewWindow()
		So(d.Size(), ShouldEqual, int64(0))

		Convey("A new update id is recorded once", func() {
			So(d.SeenAndRecord(ctx, "upd-1"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "upd-1"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, int64(1))
		})

		Convey("Unrecord allows a retry", func() {
			d.SeenAndRecord(ctx, "upd-1")
			d.Unrecord(ctx, "upd-1")
			d.Unrecord(ctx, "never-seen")
			So(d.Size(), ShouldEqual, int64(0))
			So(d.SeenAndRecord(ctx, "upd-1"), ShouldBeFalse)
		})
	})

	Convey("Given a window of three", t, func() {
		d := dedupe.NewWindow(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("upd-%d", i))
		}

		Convey("The oldest id is forgotten first", func() {
			So(d.Size(), ShouldEqual, int64(3))
			So(d.SeenAndRecord(ctx, "upd-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "upd-2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "upd-1"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded window", t, func() {
		d := dedupe.NewWindow(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("upd-%d", i))
		}
		So(d.Size(), ShouldEqual, int64(1000))
		So(d.SeenAndRecord(ctx, "upd-0"), ShouldBeTrue)
	})

	Convey("Given concurrent replays of the same ids", t, func() {
		d := dedupe.NewWindow()
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("upd-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		So(fresh, ShouldEqual, 100)
		So(d.Size(), ShouldEqual, int64(100))
	})
}
