package controller

import (
	"context"
	"net/http"
	"time"

	"judgebox/internal/judge/model"
	"judgebox/pkg/utils/logger"
	"judgebox/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultStreamLimit  = 2 * time.Minute
	writeWait           = 5 * time.Second
)

// SubmissionService is what the HTTP layer needs from the judge.
type SubmissionService interface {
	Create(ctx context.Context, req model.CreateRequest) (*model.Submission, error)
	ByToken(ctx context.Context, token string) (*model.Submission, error)
}

// StreamConfig tunes the websocket status stream.
type StreamConfig struct {
	PollInterval time.Duration
	// MaxDuration closes streams for submissions that never finish.
	MaxDuration time.Duration
	CheckOrigin func(r *http.Request) bool
}

// SubmissionController handles submission requests.
type SubmissionController struct {
	svc      SubmissionService
	stream   StreamConfig
	upgrader websocket.Upgrader
}

func NewSubmissionController(svc SubmissionService, stream StreamConfig) *SubmissionController {
	if stream.PollInterval <= 0 {
		stream.PollInterval = defaultPollInterval
	}
	if stream.MaxDuration <= 0 {
		stream.MaxDuration = defaultStreamLimit
	}
	return &SubmissionController{
		svc:    svc,
		stream: stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     stream.CheckOrigin,
		},
	}
}

// Create handles POST /submissions.
func (h *SubmissionController) Create(c *gin.Context) {
	var req model.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	sub, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, model.CreatedView{
		Token:  sub.Token,
		Status: model.NewStatusView(sub.Status),
	})
}

// Get handles GET /submissions/:token.
func (h *SubmissionController) Get(c *gin.Context) {
	sub, err := h.svc.ByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, model.NewSubmissionView(sub))
}

// Stream handles GET /submissions/:token/stream. It pushes the view whenever
// the status changes and closes the socket once the submission is terminal.
func (h *SubmissionController) Stream(c *gin.Context) {
	token := c.Param("token")
	ctx := logger.WithToken(c.Request.Context(), token)
	sub, err := h.svc.ByToken(ctx, token)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already answered the client.
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.NewTimer(h.stream.MaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(h.stream.PollInterval)
	defer ticker.Stop()

	lastStatus := -1
	for {
		if sub.Status.ID != lastStatus {
			lastStatus = sub.Status.ID
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(model.NewSubmissionView(sub)); err != nil {
				logger.Debug(ctx, "websocket write failed", zap.Error(err))
				return
			}
			if sub.Status.Terminal() {
				closeStream(conn, websocket.CloseNormalClosure, "done")
				return
			}
		}

		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-deadline.C:
			closeStream(conn, websocket.CloseGoingAway, "stream time limit")
			return
		case <-ticker.C:
		}

		next, err := h.svc.ByToken(ctx, token)
		if err != nil {
			logger.Warn(ctx, "stream lookup failed", zap.Error(err))
			closeStream(conn, websocket.CloseInternalServerErr, "lookup failed")
			return
		}
		sub = next
	}
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
