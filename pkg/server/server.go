// Package server exposes the catalog, module geometry, site boundary and
// houses over HTTP for browser clients.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/geometry"
	"github.com/chazu/buildx/pkg/houses"
	"github.com/chazu/buildx/pkg/site"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the components served.
type Deps struct {
	Catalog  *catalog.Cache
	Geometry *geometry.Service
	Site     *site.Store
	Houses   *houses.Store
	Gatherer prometheus.Gatherer // nil serves prometheus.DefaultGatherer
	Logger   *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger *slog.Logger
}

// New builds the server and registers its routes.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "buildx",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}),
		deps:   d,
		logger: d.Logger,
	}
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	s.app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/health/ready", s.ready)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")

	api.Get("/catalog", s.getCatalog)
	api.Post("/catalog/reload", s.reloadCatalog)

	api.Get("/modules/:dna/geometries", s.moduleGeometries)
	api.Get("/modules/:dna/elements/:element", s.elementGeometry)
	api.Get("/geometry/stats", s.geometryStats)

	api.Get("/site/boundary", s.getBoundary)
	api.Put("/site/boundary", s.putBoundary)

	api.Get("/houses", s.listHouses)
	api.Post("/houses", s.addHouse)
	api.Patch("/houses/:id", s.moveHouse)
	api.Delete("/houses/:id", s.removeHouse)
	api.Get("/houses/:id/geometries", s.houseGeometries)
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, geometry.ErrElementNotFound),
		errors.Is(err, geometry.ErrUnknownModule),
		errors.Is(err, houses.ErrNotFound),
		errors.Is(err, houses.ErrUnknownHouseType):
		return http.StatusNotFound
	case errors.Is(err, site.ErrInvalidPolygon):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func (s *Server) ready(c fiber.Ctx) error {
	state := s.deps.Catalog.State()
	if state != catalog.StateReady {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"catalog": state.String()})
	}
	return c.JSON(fiber.Map{"catalog": state.String()})
}

func (s *Server) getCatalog(c fiber.Ctx) error {
	cat, err := s.deps.Catalog.Get()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(cat)
}

// reloadCatalog retries the catalog load, so a session that started offline
// can recover without a restart. A Ready catalog is returned as is.
func (s *Server) reloadCatalog(c fiber.Ctx) error {
	if _, err := s.deps.Catalog.Load(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"catalog": s.deps.Catalog.State().String()})
}

func (s *Server) moduleGeometries(c fiber.Ctx) error {
	g, err := s.deps.Geometry.ModuleGeometries(c.Context(), c.Params("dna"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(g)
}

func (s *Server) elementGeometry(c fiber.Ctx) error {
	m, err := s.deps.Geometry.ElementGeometry(c.Context(), c.Params("dna"), c.Params("element"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(m)
}

func (s *Server) geometryStats(c fiber.Ctx) error {
	cache := s.deps.Geometry.Cache()
	stats := cache.Stats()
	return c.JSON(fiber.Map{
		"stats":    stats,
		"hitRatio": stats.HitRatio(),
		"modules":  cache.Modules(),
	})
}

func (s *Server) getBoundary(c fiber.Ctx) error {
	p, ok := s.deps.Site.Polygon()
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "no site boundary"})
	}
	b, err := site.EncodePolygon(p)
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(b)
}

func (s *Server) putBoundary(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return badRequest(c, "empty body")
	}
	p, err := site.DecodePolygon(c.Body())
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.deps.Site.SetPolygon(c.Context(), p); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) listHouses(c fiber.Ctx) error {
	return c.JSON(s.deps.Houses.List())
}

type addHouseRequest struct {
	HouseTypeID string     `json:"houseTypeId"`
	Position    [3]float64 `json:"position"`
}

func (s *Server) addHouse(c fiber.Ctx) error {
	var req addHouseRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.HouseTypeID == "" {
		return badRequest(c, "houseTypeId required")
	}
	h, err := s.deps.Houses.Add(c.Context(), req.HouseTypeID, req.Position)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(h)
}

type moveHouseRequest struct {
	Position [3]float64 `json:"position"`
	Rotation float64    `json:"rotation"`
}

func (s *Server) moveHouse(c fiber.Ctx) error {
	var req moveHouseRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid json")
	}
	h, err := s.deps.Houses.Move(c.Context(), c.Params("id"), req.Position, req.Rotation)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(h)
}

func (s *Server) removeHouse(c fiber.Ctx) error {
	if err := s.deps.Houses.Remove(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) houseGeometries(c fiber.Ctx) error {
	h, err := s.deps.Houses.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	mods, err := houses.Geometries(c.Context(), s.deps.Geometry, h)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(mods)
}
