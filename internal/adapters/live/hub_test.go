package live_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/live"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func recv(s *live.Subscriber) (types.Message, bool) {
	select {
	case data, ok := <-s.C():
		if !ok {
			return types.Message{}, false
		}
		var m types.Message
		_ = json.Unmarshal(data, &m)
		return m, true
	case <-time.After(time.Second):
		return types.Message{}, false
	}
}

func TestHub(t *testing.T) {
	convey.Convey("Given a hub with one rankings subscriber joined at revision 3", t, func() {
		ctx := context.Background()
		hub := live.NewHub(live.WithSendBuffer(4))
		topic := types.RankingsTopic(1)
		sub := hub.Join(topic, 3)

		convey.So(hub.Count(topic), convey.ShouldEqual, 1)
		convey.So(hub.Total(), convey.ShouldEqual, 1)

		convey.Convey("The snapshot is always delivered", func() {
			convey.So(hub.Prime(sub, types.Message{Type: types.MessageCurrentRankings, Revision: 3}), convey.ShouldBeNil)
			m, ok := recv(sub)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(m.Type, convey.ShouldEqual, types.MessageCurrentRankings)
		})

		convey.Convey("Stale updates are dropped and newer ones delivered", func() {
			n, err := hub.Publish(ctx, topic, types.Message{Type: types.MessageRankingsUpdate, Revision: 2})
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 0)
			n, _ = hub.Publish(ctx, topic, types.Message{Type: types.MessageRankingsUpdate, Revision: 3})
			convey.So(n, convey.ShouldEqual, 0)
			n, _ = hub.Publish(ctx, topic, types.Message{Type: types.MessageRankingsUpdate, Revision: 4})
			convey.So(n, convey.ShouldEqual, 1)

			m, ok := recv(sub)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(m.Revision, convey.ShouldEqual, int64(4))
			convey.So(sub.Revision(), convey.ShouldEqual, int64(4))

			n, _ = hub.Publish(ctx, topic, types.Message{Type: types.MessageRankingsUpdate, Revision: 4})
			convey.So(n, convey.ShouldEqual, 0)
		})

		convey.Convey("Other topics are not delivered", func() {
			n, _ := hub.Publish(ctx, types.RankingsTopic(2), types.Message{Revision: 10})
			convey.So(n, convey.ShouldEqual, 0)
			n, _ = hub.Publish(ctx, types.ScoresTopic(1, 1), types.Message{Revision: 10})
			convey.So(n, convey.ShouldEqual, 0)
		})

		convey.Convey("A subscriber that does not keep up is disconnected", func() {
			for rev := int64(4); rev < 10; rev++ {
				_, _ = hub.Publish(ctx, topic, types.Message{Revision: rev})
			}
			convey.So(hub.Count(topic), convey.ShouldEqual, 0)
			drained := 0
			for range sub.C() {
				drained++
			}
			convey.So(drained, convey.ShouldEqual, 4)
		})

		convey.Convey("Leave closes the stream and is idempotent", func() {
			hub.Leave(sub)
			hub.Leave(sub)
			_, ok := <-sub.C()
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(hub.Total(), convey.ShouldEqual, 0)
		})

		convey.Convey("Close disconnects everyone", func() {
			other := hub.Join(types.ScoresTopic(1, 5), 0)
			hub.Close()
			_, ok := <-other.C()
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(hub.Total(), convey.ShouldEqual, 0)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given a websocket endpoint backed by the hub", t, func() {
		hub := live.NewHub()
		topic := types.RankingsTopic(7)
		var failJoin atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub.Serve(w, r, func(context.Context) (*live.Subscriber, error) {
				if failJoin.Load() {
					return nil, errors.New("competition not found")
				}
				s := hub.Join(topic, 1)
				return s, hub.Prime(s, types.Message{Type: types.MessageCurrentRankings, CompetitionID: 7, Revision: 1})
			})
		}))
		defer srv.Close()
		url := "ws" + strings.TrimPrefix(srv.URL, "http")

		read := func(conn *websocket.Conn) types.Message {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, data, err := conn.ReadMessage()
			convey.So(err, convey.ShouldBeNil)
			var m types.Message
			convey.So(json.Unmarshal(data, &m), convey.ShouldBeNil)
			return m
		}

		convey.Convey("A client receives the snapshot then updates", func() {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			convey.So(err, convey.ShouldBeNil)
			defer conn.Close()

			convey.So(read(conn).Type, convey.ShouldEqual, types.MessageCurrentRankings)

			deadline := time.Now().Add(time.Second)
			for hub.Count(topic) == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			n, err := hub.Publish(context.Background(), topic, types.Message{Type: types.MessageRankingsUpdate, Revision: 2})
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 1)
			m := read(conn)
			convey.So(m.Type, convey.ShouldEqual, types.MessageRankingsUpdate)
			convey.So(m.Revision, convey.ShouldEqual, int64(2))
		})

		convey.Convey("A failed join is reported to the client", func() {
			failJoin.Store(true)
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			convey.So(err, convey.ShouldBeNil)
			defer conn.Close()
			m := read(conn)
			convey.So(m.Type, convey.ShouldEqual, types.MessageError)
			convey.So(hub.Total(), convey.ShouldEqual, 0)
		})
	})
}
