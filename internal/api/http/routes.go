package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/atmosync/atmosync/internal/catalog"
	"github.com/atmosync/atmosync/internal/measure"
	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the read-only HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, cat *catalog.Catalog, measures *measure.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		stations, err := cat.Stations(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list stations")
		}
		return c.JSON(fiber.Map{"stations": stations})
	})

	v1.Get("/stations/:id/modules", func(c *fiber.Ctx) error {
		stationID := c.Params("id")
		if _, err := cat.Station(c.Context(), stationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "unknown station")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load station")
		}

		modules, err := cat.ModulesOf(c.Context(), stationID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list modules")
		}
		return c.JSON(fiber.Map{"modules": modules})
	})

	v1.Get("/measures", func(c *fiber.Ctx) error {
		var req measuresQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		station, err := cat.Station(c.Context(), req.StationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "unknown station")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load station")
		}

		var module *netatmo.Module
		deviceTypes := station.MeasurementTypes()
		if req.ModuleID != "" {
			modules, err := cat.ModulesOf(c.Context(), req.StationID)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to load modules")
			}
			for i := range modules {
				if modules[i].ID == req.ModuleID {
					module = &modules[i]
					break
				}
			}
			if module == nil {
				return fiber.NewError(fiber.StatusNotFound, "unknown module for station")
			}
			deviceTypes = module.MeasurementTypes()
		}

		types := req.types
		if len(types) == 0 {
			types = deviceTypes
		}

		result, err := measures.Query(c.Context(), station, module, types, req.From, req.To, req.ascending())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query measures")
		}

		items := make([]measureItem, 0, len(result))
		for _, m := range result {
			items = append(items, measureItem{
				Timestamp: m.Timestamp.UTC(),
				Type:      m.Type.String(),
				Value:     m.Value,
				Unit:      m.Unit(),
			})
		}

		return c.JSON(fiber.Map{
			"station":  station.ID,
			"module":   req.ModuleID,
			"from":     req.From,
			"to":       req.To,
			"measures": items,
		})
	})
}

// measureItem is one sample in a measures response.
type measureItem struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// measuresQuery holds query parameters for the measures endpoint.
type measuresQuery struct {
	StationID string `validate:"required"`
	ModuleID  string
	From      time.Time `validate:"required"`
	To        time.Time `validate:"required,gtefield=From"`
	Order     string    `validate:"omitempty,oneof=asc desc"`

	types []netatmo.MeasureType
}

func (q *measuresQuery) ascending() bool {
	return q.Order == "asc"
}

func (q *measuresQuery) bind(c *fiber.Ctx) error {
	q.StationID = c.Query("station")
	q.ModuleID = c.Query("module")
	q.Order = c.Query("order")

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}
	q.From = from
	q.To = to

	if typesStr := c.Query("types"); typesStr != "" {
		for _, name := range strings.Split(typesStr, ",") {
			t, ok := netatmo.ParseMeasureType(strings.TrimSpace(name))
			if !ok {
				return errors.New("unknown measurement type: " + name)
			}
			q.types = append(q.types, t)
		}
	}

	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
