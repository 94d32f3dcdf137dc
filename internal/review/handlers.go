package review

import (
	"errors"
	"strconv"

	"github.com/linuskang/bubbly/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, sessionAuth, deleteAuth fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Query("bubblerId"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid bubblerId")
		}
		reviews, err := svc.ListByBubbler(c.Context(), id)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(reviews)
	})

	r.Post("/", sessionAuth, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		created, err := svc.Create(c.Context(), req, auth.ActorFromCtx(c))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(created)
	})

	r.Delete("/", deleteAuth, func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Query("reviewId"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid reviewId")
		}
		if err := svc.Delete(c.Context(), id, auth.ActorFromCtx(c)); err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{"message": "Review deleted"})
	})

	r.Get("/recent", func(c *fiber.Ctx) error {
		limit := 10
		if raw := c.Query("number"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid number")
			}
			limit = n
		}
		reviews, err := svc.Recent(c.Context(), limit)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(reviews)
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBubblerNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
