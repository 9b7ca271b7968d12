package recon

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/event"
	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/server"
)

const (
	// streamInterval is the minimum spacing between pushed snapshots.
	streamInterval  = 250 * time.Millisecond
	streamWriteWait = 5 * time.Second
)

// streamTopics are the scanner events that change the current snapshot.
var streamTopics = []string{
	scanner.TopicScanStarted,
	scanner.TopicHostProbed,
	scanner.TopicScanCompleted,
}

// handleResultsStream pushes the current snapshot over a websocket whenever a
// scan event marks it dirty, at most once per streamInterval. The first frame
// is sent immediately.
//
//	@Summary		Live results
//	@Description	Websocket stream of snapshots while scans progress.
//	@Tags			scan
//	@Success		101
//	@Failure		503	{object}	server.Problem	"No event bus configured"
//	@Router			/results/ws [get]
func (m *Module) handleResultsStream(w http.ResponseWriter, r *http.Request) {
	if m.bus == nil {
		server.Unavailable(w, "live results are not available", r.URL.Path)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	var dirty atomic.Bool
	dirty.Store(true)
	markDirty := func(context.Context, event.Event) { dirty.Store(true) }
	for _, topic := range streamTopics {
		defer m.bus.Subscribe(topic, markDirty)()
	}

	// Clients never send; CloseRead handles control frames and reports
	// disconnects through ctx.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	for {
		if dirty.Swap(false) {
			wctx, cancel := context.WithTimeout(ctx, streamWriteWait)
			err := wsjson.Write(wctx, conn, m.coordinator.Current())
			cancel()
			if err != nil {
				m.logger.Debug("results stream write failed", zap.Error(err))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-m.scanCtx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ticker.C:
		}
	}
}
