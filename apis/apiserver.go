package apis

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tphan267/roomlink/pkg/api"
	"github.com/tphan267/roomlink/pkg/chat"
	"github.com/tphan267/roomlink/pkg/core"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/session"
	"github.com/tphan267/roomlink/pkg/signaling"
	"github.com/tphan267/roomlink/ui"
)

// Options tunes the local API server
type Options struct {
	// APIToken, when set, is required as a bearer token on every /api route
	APIToken string
	// AccessLog enables per-request logging
	AccessLog bool
}

// ApiServer is the local HTTP API the UI uses to drive the session
type ApiServer struct {
	app     *fiber.App
	coreApp core.App
	logger  *logger.Logger
	opts    Options
}

type strokeRequest struct {
	From  models.Point `json:"from"`
	To    models.Point `json:"to"`
	Color string       `json:"color"`
	Size  float64      `json:"size"`
}

type mediaRequest struct {
	Mic bool `json:"mic"`
	Cam bool `json:"cam"`
}

type chatRequest struct {
	Text string `json:"text"`
}

// New creates the API server for coreApp
func New(coreApp core.App, log *logger.Logger, opts Options) *ApiServer {
	if log == nil {
		log = logger.Discard()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	s := &ApiServer{
		app:     app,
		coreApp: coreApp,
		logger:  log,
		opts:    opts,
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupUI()

	return s
}

func (s *ApiServer) setupMiddleware() {
	s.app.Use(recover.New())
	if s.opts.AccessLog {
		s.app.Use(fiberlogger.New())
	}
}

func (s *ApiServer) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	apiGroup := s.app.Group("/api")
	if s.opts.APIToken != "" {
		apiGroup.Use(s.authMiddleware)
	}

	apiGroup.Get("/session", s.handleSession)
	apiGroup.Post("/session/reconnect", s.handleReconnect)
	apiGroup.Get("/peers", s.handlePeers)

	apiGroup.Get("/media", s.handleGetMedia)
	apiGroup.Put("/media", s.handleSetMedia)

	apiGroup.Get("/canvas", s.handleGetCanvas)
	apiGroup.Get("/canvas.png", s.handleCanvasPNG)
	apiGroup.Post("/canvas/strokes", s.handleDraw)
	apiGroup.Post("/canvas/undo", s.handleUndo)
	apiGroup.Post("/canvas/redo", s.handleRedo)
	apiGroup.Post("/canvas/clear", s.handleClear)
	apiGroup.Post("/canvas/save", s.handleSave)

	apiGroup.Get("/chat", s.handleGetChat)
	apiGroup.Post("/chat", s.handleSendChat)
}

// setupUI serves the embedded room viewer; unknown paths fall through to 404
func (s *ApiServer) setupUI() {
	s.app.Use("/", filesystem.New(filesystem.Config{
		Root:   http.FS(ui.FS),
		Browse: false,
	}))
}

// App returns the underlying Fiber app
func (s *ApiServer) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server
func (s *ApiServer) Start(addr string) error {
	s.logger.Info("[API] Starting server on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *ApiServer) Shutdown(ctx context.Context) error {
	s.logger.Info("[API] Server shutdown requested")
	return s.app.ShutdownWithContext(ctx)
}

// authMiddleware checks the bearer token against the configured API token
func (s *ApiServer) authMiddleware(c *fiber.Ctx) error {
	token := extractToken(c)
	if token == "" {
		return api.ErrorUnauthorizedResp(c, "Missing authorization token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIToken)) != 1 {
		return api.ErrorUnauthorizedResp(c, "Invalid authorization token")
	}
	return c.Next()
}

func (s *ApiServer) handleHealth(c *fiber.Ctx) error {
	return api.SuccessResp(c, fiber.Map{
		"status": "healthy",
	})
}

func (s *ApiServer) handleSession(c *fiber.Ctx) error {
	return api.SuccessResp(c, s.coreApp.Info())
}

func (s *ApiServer) handleReconnect(c *fiber.Ctx) error {
	// The channel task outlives this request
	if err := s.coreApp.Reconnect(context.Background()); err != nil {
		if errors.Is(err, session.ErrNotStarted) {
			return api.ErrorCodeResp(c, fiber.StatusConflict, err.Error())
		}
		return api.ErrorInternalServerErrorResp(c, err.Error())
	}
	return api.SuccessResp(c, s.coreApp.Info())
}

func (s *ApiServer) handlePeers(c *fiber.Ctx) error {
	return api.ListResp(c, s.coreApp.Peers())
}

func (s *ApiServer) handleGetMedia(c *fiber.Ctx) error {
	return api.SuccessResp(c, fiber.Map{
		"local":  s.coreApp.LocalStatus(),
		"remote": s.coreApp.Statuses(),
	})
}

func (s *ApiServer) handleSetMedia(c *fiber.Ctx) error {
	var req mediaRequest
	if err := c.BodyParser(&req); err != nil {
		return api.ErrorBadRequestResp(c, "Invalid request body")
	}

	status, err := s.coreApp.SetMedia(req.Mic, req.Cam)
	if err != nil {
		return api.FaultResp(c, err)
	}
	return api.SuccessResp(c, status)
}

func (s *ApiServer) handleGetCanvas(c *fiber.Ctx) error {
	strokes := s.coreApp.Strokes()
	redo := s.coreApp.RedoBuffer()
	if strokes == nil {
		strokes = []models.Stroke{}
	}
	if redo == nil {
		redo = []models.Stroke{}
	}
	return api.SuccessResp(c, fiber.Map{
		"strokes": strokes,
		"redo":    redo,
	})
}

func (s *ApiServer) handleCanvasPNG(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := s.coreApp.EncodeCanvasPNG(&buf); err != nil {
		return api.ErrorNotFoundResp(c, err.Error())
	}
	c.Type("png")
	return c.Send(buf.Bytes())
}

func (s *ApiServer) handleDraw(c *fiber.Ctx) error {
	var req strokeRequest
	if err := c.BodyParser(&req); err != nil {
		return api.ErrorBadRequestResp(c, "Invalid request body")
	}
	if req.Color == "" {
		return api.ErrorBadRequestResp(c, "Missing color")
	}
	if req.Size <= 0 {
		return api.ErrorBadRequestResp(c, "Size must be positive")
	}

	stroke := s.coreApp.DrawStroke(req.From, req.To, req.Color, req.Size)
	return api.SuccessResp(c, stroke)
}

func (s *ApiServer) handleUndo(c *fiber.Ctx) error {
	return api.SuccessResp(c, fiber.Map{"applied": s.coreApp.Undo()})
}

func (s *ApiServer) handleRedo(c *fiber.Ctx) error {
	return api.SuccessResp(c, fiber.Map{"applied": s.coreApp.Redo()})
}

func (s *ApiServer) handleClear(c *fiber.Ctx) error {
	s.coreApp.ClearCanvas()
	return api.SuccessResp(c, fiber.Map{"cleared": true})
}

func (s *ApiServer) handleSave(c *fiber.Ctx) error {
	if err := s.coreApp.SaveCanvas(c.UserContext()); err != nil {
		return api.FaultResp(c, err)
	}
	return api.SuccessResp(c, fiber.Map{"saved": len(s.coreApp.Strokes())})
}

func (s *ApiServer) handleGetChat(c *fiber.Ctx) error {
	return api.ListResp(c, s.coreApp.ChatHistory())
}

func (s *ApiServer) handleSendChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return api.ErrorBadRequestResp(c, "Invalid request body")
	}

	err := s.coreApp.SendChat(req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return api.ErrorBadRequestResp(c, err.Error())
	case errors.Is(err, signaling.ErrNotOpen):
		return api.ErrorCodeResp(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return api.ErrorInternalServerErrorResp(c, err.Error())
	}
	return api.SuccessResp(c, fiber.Map{"sent": true})
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// customErrorHandler renders unhandled errors in the response envelope
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(api.ApiResponse{
		Success: false,
		Error: &api.ApiError{
			Code:    code,
			Message: err.Error(),
		},
	})
}
