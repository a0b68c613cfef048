package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/mapcore/internal/adapters/nats"
	"github.com/samirrijal/mapcore/internal/core/domain"
	"github.com/samirrijal/mapcore/internal/core/usecases"
	"github.com/samirrijal/mapcore/internal/pkg/metrics"
)

// wsMessage is sent by clients to follow the clusters of a map view.
//
//	{"action":"subscribe","view_id":"v1","bounds":{...},"zoom":12,"width":800,"height":600}
//	{"action":"viewport","view_id":"v1","bounds":{...},"zoom":13,"width":800,"height":600}
//	{"action":"unsubscribe","view_id":"v1"}
//	{"action":"hover","lat":55.75,"lon":37.61,"lang":"ru"}
type wsMessage struct {
	Action string        `json:"action"`
	ViewID string        `json:"view_id"`
	Bounds domain.Bounds `json:"bounds"`
	Zoom   int           `json:"zoom"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Lat    float64       `json:"lat"`
	Lon    float64       `json:"lon"`
	Lang   string        `json:"lang"`
}

func (m wsMessage) viewport() *domain.ViewportEvent {
	return &domain.ViewportEvent{
		ViewID: m.ViewID,
		Bounds: m.Bounds,
		Zoom:   m.Zoom,
		Width:  m.Width,
		Height: m.Height,
	}
}

// WebSocketHandler relays cluster snapshots of the views a client follows.
// Viewport changes sent by the client are forwarded to the cluster relay,
// which answers on map.clusters.<view_id>. Hover messages are reverse
// geocoded once the pointer rests for the debounce interval.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	nc, viewports := deps.NATS, deps.Viewports
	return func(c *websocket.Conn) {
		defer c.Close()

		logger := slog.Default().With("remote", c.RemoteAddr().String())
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		reply := func(status, viewID string) {
			_ = writeJSON(map[string]string{"status": status, "view_id": viewID})
		}
		fail := func(msg string) {
			_ = writeJSON(map[string]string{"error": msg})
		}

		publish := func(ev *domain.ViewportEvent) error {
			if viewports == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return viewports.PublishViewport(ctx, ev)
		}

		var resolver *usecases.AddressResolver
		if deps.Geocoding != nil {
			resolver = usecases.NewAddressResolver(deps.Geocoding, deps.HoverDebounce, logger)
			defer resolver.Close()
		}
		hover := func(m wsMessage) {
			coords := domain.LngLat{m.Lon, m.Lat}
			resolver.Hover(coords, domain.GeocodingOptions{Language: m.Lang}, func(res *domain.ReverseGeocodingResult, err error) {
				switch {
				case errors.Is(err, domain.ErrAddressNotFound):
					_ = writeJSON(map[string]any{"hover": coords, "address": nil})
				case err != nil:
					fail("reverse geocoding failed")
				default:
					_ = writeJSON(map[string]any{"hover": coords, "address": res})
				}
			})
		}

		subs := make(map[string]*nats.Subscription) // view_id -> subscription

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				fail("invalid JSON")
				continue
			}
			if m.Action == "hover" {
				if resolver == nil {
					fail("geocoding not available")
					continue
				}
				if !(domain.GeoPoint{Lat: m.Lat, Lon: m.Lon}).Valid() {
					fail("invalid coordinates")
					continue
				}
				hover(m)
				continue
			}
			if m.ViewID == "" {
				fail("view_id is required")
				continue
			}
			if nc == nil {
				fail("live clusters not available")
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, ok := subs[m.ViewID]; ok {
					reply("already subscribed", m.ViewID)
					continue
				}
				if !m.Bounds.Valid() {
					fail("invalid bounds")
					continue
				}
				s, err := nc.Subscribe(natsadapter.ClusterSubject(m.ViewID), func(msg *nats.Msg) {
					_ = writeJSON(map[string]any{
						"view_id":  m.ViewID,
						"snapshot": json.RawMessage(msg.Data),
					})
				})
				if err != nil {
					fail("subscribe failed: " + err.Error())
					continue
				}
				subs[m.ViewID] = s
				if err := publish(m.viewport()); err != nil {
					logger.Warn("publish viewport failed", "view_id", m.ViewID, "error", err)
				}
				reply("subscribed", m.ViewID)

			case "viewport":
				if _, ok := subs[m.ViewID]; !ok {
					fail("not subscribed to " + m.ViewID)
					continue
				}
				if !m.Bounds.Valid() {
					fail("invalid bounds")
					continue
				}
				if err := publish(m.viewport()); err != nil {
					fail("viewport update failed")
					logger.Warn("publish viewport failed", "view_id", m.ViewID, "error", err)
				}

			case "unsubscribe":
				s, ok := subs[m.ViewID]
				if !ok {
					fail("not subscribed to " + m.ViewID)
					continue
				}
				_ = s.Unsubscribe()
				delete(subs, m.ViewID)
				_ = publish(&domain.ViewportEvent{ViewID: m.ViewID, Closed: true})
				reply("unsubscribed", m.ViewID)

			default:
				fail("unknown action: " + m.Action)
			}
		}

		close(done)
		for viewID, s := range subs {
			_ = s.Unsubscribe()
			_ = publish(&domain.ViewportEvent{ViewID: viewID, Closed: true})
		}
		logger.Info("ws client disconnected")
	}
}
