package handler

import (
	"bufio"
	"context"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/scripttrimmer/api/internal/progress"
	"github.com/scripttrimmer/api/internal/service"
	"github.com/scripttrimmer/api/internal/sse"
	"github.com/scripttrimmer/api/internal/websocket"
)

// StreamHandler exposes the progress stream over SSE and WebSocket. Both
// transports are read-only views of the same store; dropping either never
// touches the running job.
type StreamHandler struct {
	publisher *sse.Publisher
	relay     *websocket.Relay
	service   *service.ProcessService
}

func NewStreamHandler(publisher *sse.Publisher, relay *websocket.Relay, svc *service.ProcessService) *StreamHandler {
	return &StreamHandler{
		publisher: publisher,
		relay:     relay,
		service:   svc,
	}
}

// Events handles GET /stream/:key
// @Summary      Stream job progress
// @Description  Server-sent events stream of progress updates for a job, closed after the terminal update
// @Tags         Stream
// @Produce      text/event-stream
// @Param        key path string true "Job key"
// @Success      200 {string} string "SSE stream"
// @Failure      400 {object} response.ErrorResponse
// @Router       /stream/{key} [get]
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	// Clients either pass the key from the start ack or the raw reference,
	// which derives the same key.
	key := c.Params("key")
	jobReference := c.Query("job_reference")
	if key == "" && jobReference != "" {
		key = progress.DeriveKey(jobReference)
	}
	if key == "" {
		return fiber.ErrBadRequest
	}
	if jobReference == "" {
		jobReference = h.jobReference(c.Context(), key)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The stream writer runs after the handler returns; a detached context
	// keeps a client disconnect from reaching the pipeline.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.publisher.Stream(context.Background(), key, jobReference, w)
	}))

	return nil
}

// Socket returns the handler for GET /ws/jobs/:key.
func (h *StreamHandler) Socket() fiber.Handler {
	return fiberws.New(func(conn *fiberws.Conn) {
		key := conn.Params("key")
		if key == "" {
			conn.Close()
			return
		}
		h.relay.HandleConnection(conn, key, h.jobReference(context.Background(), key))
	})
}

// Upgrade gates WebSocket routes; plain HTTP requests get a 426.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// jobReference resolves the original reference for the handshake. Streams may
// open before the job record exists; the handshake then omits it.
func (h *StreamHandler) jobReference(ctx context.Context, key string) string {
	status, err := h.service.GetStatus(ctx, key)
	if err != nil {
		return ""
	}
	return status.JobReference
}
