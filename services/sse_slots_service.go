package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
)

// StreamSlotsSSE streams the open winner slots of a chapter. An event is sent
// on connect and whenever the count changes; the count is re-read from the
// database on every tick.
func (s *ChapterService) StreamSlotsSSE(c *fiber.Ctx, chapterID uint, interval time.Duration) error {
	if _, err := s.Slots(c.UserContext(), chapterID); err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	reqCtx := c.Context()
	reqCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := -1
		send := func() bool {
			remaining, err := s.Slots(context.Background(), chapterID)
			if err != nil {
				logger.Warn("SSE slots query failed", zap.Uint("chapter_id", chapterID), zap.Error(err))
				// keepalive so a dead client is still detected
				_, _ = w.WriteString(":\n\n")
				return w.Flush() == nil
			}
			if remaining == last {
				_, _ = w.WriteString(":\n\n")
				return w.Flush() == nil
			}
			last = remaining

			payload, _ := json.Marshal(fiber.Map{"chapter_id": chapterID, "remaining": remaining})
			fmt.Fprintf(w, "event: slots\ndata: %s\n\n", payload)
			return w.Flush() == nil
		}

		if !send() {
			return
		}
		for {
			select {
			case <-ticker.C:
				if !send() {
					return
				}
			case <-reqCtx.Done():
				return
			}
		}
	})

	return nil
}
