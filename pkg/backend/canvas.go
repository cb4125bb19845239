package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/roomlink/pkg/models"
)

// DefaultTimeout bounds every backend request
const DefaultTimeout = 10 * time.Second

// ErrUnexpectedStatus is returned for any non-2xx backend response
var ErrUnexpectedStatus = errors.New("unexpected backend status")

type canvasBody struct {
	Data []models.Stroke `json:"data"`
}

// CanvasClient loads and saves a room's stroke log on the backend
type CanvasClient struct {
	apiBase string
	token   string
	timeout time.Duration
}

// NewCanvasClient creates a client for {apiBase}/rooms/{id}/canvas/
func NewCanvasClient(apiBase, token string) *CanvasClient {
	return &CanvasClient{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		timeout: DefaultTimeout,
	}
}

func (c *CanvasClient) canvasURL(roomID string) string {
	return fmt.Sprintf("%s/rooms/%s/canvas/", c.apiBase, url.PathEscape(roomID))
}

// requestTimeout shortens the default timeout to the context deadline
func (c *CanvasClient) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

func (c *CanvasClient) do(ctx context.Context, agent *fiber.Agent) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// keep escaped room ids such as %2F intact on the wire
	agent.Request().URI().DisablePathNormalizing = true
	agent.Timeout(c.requestTimeout(ctx))
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("request failed: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
	return body, nil
}

// LoadCanvas fetches the saved stroke log for roomID
func (c *CanvasClient) LoadCanvas(ctx context.Context, roomID string) ([]models.Stroke, error) {
	body, err := c.do(ctx, fiber.Get(c.canvasURL(roomID)))
	if err != nil {
		return nil, fmt.Errorf("failed to load canvas: %w", err)
	}

	var resp canvasBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode canvas: %w", err)
	}
	return resp.Data, nil
}

// SaveCanvas replaces the saved stroke log for roomID
func (c *CanvasClient) SaveCanvas(ctx context.Context, roomID string, strokes []models.Stroke) error {
	if strokes == nil {
		strokes = []models.Stroke{}
	}

	agent := fiber.Put(c.canvasURL(roomID)).JSON(canvasBody{Data: strokes})
	if _, err := c.do(ctx, agent); err != nil {
		return fmt.Errorf("failed to save canvas: %w", err)
	}
	return nil
}
