package waypoint

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/linuskang/bubbly/internal/audit"
	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/cache"

	"github.com/gofiber/fiber/v2"
)

const (
	cacheKeyAll   = "waypoints:all"
	cacheKeyStats = "waypoints:stats"
)

func RegisterRoutes(r fiber.Router, svc *Service, audits *audit.Store, c *cache.Cache, mutateAuth, apiKeyOnly fiber.Handler) {
	r.Get("/", func(ctx *fiber.Ctx) error {
		if idParam := ctx.Query("id"); idParam != "" {
			id, err := strconv.ParseInt(idParam, 10, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid id")
			}
			wp, err := svc.Get(ctx.Context(), id)
			if err != nil {
				return serviceError(err)
			}
			return ctx.JSON(wp)
		}

		if name := ctx.Query("name"); name != "" {
			results, err := svc.SearchByName(ctx.Context(), name)
			if err != nil {
				return serviceError(err)
			}
			if len(results) == 0 {
				return fiber.NewError(fiber.StatusNotFound, "no waypoints found")
			}
			return ctx.JSON(results)
		}

		var all []Waypoint
		if c.GetJSON(ctx.Context(), cacheKeyAll, &all) {
			return ctx.JSON(all)
		}
		all, err := svc.List(ctx.Context())
		if err != nil {
			return serviceError(err)
		}
		c.SetJSON(ctx.Context(), cacheKeyAll, all)
		return ctx.JSON(all)
	})

	r.Post("/", mutateAuth, func(ctx *fiber.Ctx) error {
		var req CreateRequest
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		wp, err := svc.Create(ctx.Context(), req, auth.ActorFromCtx(ctx))
		if err != nil {
			return serviceError(err)
		}
		c.Invalidate(ctx.Context(), cacheKeyAll, cacheKeyStats)
		return ctx.JSON(wp)
	})

	r.Patch("/", mutateAuth, func(ctx *fiber.Ctx) error {
		id, err := strconv.ParseInt(ctx.Query("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		var patch Patch
		if err := ctx.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		wp, err := svc.Update(ctx.Context(), id, patch, auth.ActorFromCtx(ctx))
		if err != nil {
			return serviceError(err)
		}
		c.Invalidate(ctx.Context(), cacheKeyAll, cacheKeyStats)
		return ctx.JSON(wp)
	})

	r.Delete("/", apiKeyOnly, func(ctx *fiber.Ctx) error {
		id, err := strconv.ParseInt(ctx.Query("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		if _, err := svc.Delete(ctx.Context(), id); err != nil {
			return serviceError(err)
		}
		c.Invalidate(ctx.Context(), cacheKeyAll, cacheKeyStats)
		return ctx.SendString(fmt.Sprintf("Deleted bubbler with id %d", id))
	})

	r.Get("/logs", func(ctx *fiber.Ctx) error {
		id, err := strconv.ParseInt(ctx.Query("bubblerId"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid bubblerId")
		}
		entries, err := audits.List(ctx.Context(), id)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return ctx.JSON(entries)
	})

	r.Get("/recentlyadded", func(ctx *fiber.Ctx) error {
		limit := 10
		if raw := ctx.Query("number"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid number")
			}
			limit = n
		}
		results, err := svc.Recent(ctx.Context(), limit)
		if err != nil {
			return serviceError(err)
		}
		return ctx.JSON(results)
	})

	r.Get("/nearby", func(ctx *fiber.Ctx) error {
		lat, err1 := strconv.ParseFloat(ctx.Query("lat"), 64)
		lng, err2 := strconv.ParseFloat(ctx.Query("lng"), 64)
		if err1 != nil || err2 != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius := 1.0
		if raw := ctx.Query("radius_km"); raw != "" {
			r, err := strconv.ParseFloat(raw, 64)
			if err != nil || r <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid radius_km")
			}
			radius = r
		}
		results, err := svc.Nearby(ctx.Context(), lat, lng, radius)
		if err != nil {
			return serviceError(err)
		}
		return ctx.JSON(results)
	})

}

// RegisterStats mounts the sitewide stats endpoint. It lives beside
// the waypoint routes rather than under them.
func RegisterStats(r fiber.Router, svc *Service, c *cache.Cache) {
	r.Get("/stats", func(ctx *fiber.Ctx) error {
		var stats Stats
		if c.GetJSON(ctx.Context(), cacheKeyStats, &stats) {
			return ctx.JSON(stats)
		}
		stats, err := svc.Stats(ctx.Context())
		if err != nil {
			return serviceError(err)
		}
		c.SetJSON(ctx.Context(), cacheKeyStats, stats)
		return ctx.JSON(stats)
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoChanges), errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
