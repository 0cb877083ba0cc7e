package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"hashrate-rental-system/events"

	"github.com/gofiber/fiber/v2"
)

// StreamService bridges the in-process event hub onto SSE connections.
type StreamService struct {
	Hub *events.Hub
}

func NewStreamService(hub *events.Hub) *StreamService {
	return &StreamService{Hub: hub}
}

// StreamEvents streams ledger events for the connected user. Broadcast
// events (new blocks, interruptions, price updates) arrive on every
// stream; user-scoped events only on that user's streams.
func (s *StreamService) StreamEvents(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	sub := s.Hub.Subscribe(userID, 32)

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Hub.Unsubscribe(sub)

		// Keepalive so proxies don't reap idle connections.
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev.Payload)
				if err != nil {
					log.Printf("SSE marshal error for user %s: %v", userID, err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
