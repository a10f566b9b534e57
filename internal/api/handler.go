package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/commands"
	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

// CommandRunner is satisfied by *commands.Registry.
type CommandRunner interface {
	Names() []commands.Name
	Run(ctx context.Context, name commands.Name, args commands.Args) (*commands.Result, error)
}

// IncidentFetcher is satisfied by *incidents.Fetcher.
type IncidentFetcher interface {
	FetchOnce(ctx context.Context) ([]model.Incident, error)
}

// IncidentLister reads the incident log.
type IncidentLister interface {
	RecentIncidents(ctx context.Context, instance string, limit int) ([]model.Incident, error)
}

type Handler struct {
	Logger   *zap.Logger
	Commands CommandRunner
	Fetcher  IncidentFetcher
	Log      IncidentLister
	Instance string
}

// ListCommands returns the command catalog.
func (h *Handler) ListCommands(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"commands": h.Commands.Names()})
}

// RunCommand executes :name with the JSON object body as arguments. Commands
// that produce a file answer with the file itself.
func (h *Handler) RunCommand(c *fiber.Ctx) error {
	name := commands.Name(c.Params("name"))

	args := commands.Args{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&args); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "arguments must be a JSON object of strings: " + err.Error()})
		}
	}

	res, err := h.Commands.Run(c.UserContext(), name, args)
	if err != nil {
		return h.fail(c, err)
	}

	if res.File != nil {
		c.Attachment(res.File.Name)
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Status(http.StatusOK).Send(res.File.Content)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// FetchIncidents runs one incident fetch cycle.
func (h *Handler) FetchIncidents(c *fiber.Ctx) error {
	if h.Fetcher == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "incident fetching is not configured"})
	}
	incs, err := h.Fetcher.FetchOnce(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	if incs == nil {
		incs = []model.Incident{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"count": len(incs), "incidents": incs})
}

// ListIncidents returns the newest logged incidents, ?limit= (default 50).
func (h *Handler) ListIncidents(c *fiber.Ctx) error {
	if h.Log == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "incident log is not configured"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive number"})
	}
	incs, err := h.Log.RecentIncidents(c.UserContext(), h.Instance, limit)
	if err != nil {
		h.Logger.Error("api.list_incidents_failed", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(incs)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code, kind := classify(err)
	h.Logger.Warn("api.request_failed",
		zap.String("path", c.Path()),
		zap.String("kind", kind),
		zap.Int("status", code),
		zap.Error(err))
	return c.Status(code).JSON(fiber.Map{"error": err.Error(), "kind": kind})
}

// classify maps an error to an HTTP status and a short kind label.
func classify(err error) (int, string) {
	var (
		unknown *commands.UnknownCommandError
		argErr  *commands.ArgumentError
		cfgErr  *tanium.ConfigurationError
		authErr *tanium.AuthenticationError
		reqErr  *tanium.RequestError
		trErr   *tanium.TransportError
	)
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound, "unknown_command"
	case errors.As(err, &argErr):
		return http.StatusBadRequest, "invalid_arguments"
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "configuration"
	case errors.As(err, &authErr):
		if authErr.SessionExpired {
			return http.StatusUnauthorized, "session_expired"
		}
		return http.StatusUnauthorized, "authentication"
	case errors.As(err, &reqErr):
		if reqErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound, "not_found"
		}
		return http.StatusBadGateway, "request"
	case errors.As(err, &trErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "transport"
		}
		return http.StatusBadGateway, "transport"
	}
	return http.StatusInternalServerError, "internal"
}
