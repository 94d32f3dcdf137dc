package user

import (
	"errors"
	"strconv"

	"github.com/linuskang/bubbly/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the user surface. Fixed paths register before
// the :username catch-all so they are not shadowed.
func RegisterRoutes(r fiber.Router, svc *Service, sessionAuth, profileAuth fiber.Handler) {
	r.Get("/xp", func(c *fiber.Ctx) error {
		userID := c.Query("userId")
		username := c.Query("username")
		if userID == "" && username == "" {
			return fiber.NewError(fiber.StatusBadRequest, "userId or username required")
		}

		var (
			status XPStatus
			err    error
		)
		if userID != "" {
			status, err = svc.XPStatus(c.Context(), userID)
		} else {
			status, err = svc.XPStatusByUsername(c.Context(), username)
		}
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(status)
	})

	r.Get("/favorites", sessionAuth, func(c *fiber.Ctx) error {
		favorites, err := svc.Favorites(c.Context(), auth.ActorFromCtx(c).UserID)
		if err != nil {
			return serviceError(err)
		}
		if favorites == nil {
			favorites = []Favorite{}
		}
		return c.JSON(favorites)
	})

	r.Post("/favorites", sessionAuth, func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Query("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		f, err := svc.AddFavorite(c.Context(), auth.ActorFromCtx(c).UserID, id)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(f)
	})

	r.Delete("/favorites", sessionAuth, func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Query("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		if err := svc.RemoveFavorite(c.Context(), auth.ActorFromCtx(c).UserID, id); err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{"message": "Favorite removed"})
	})

	r.Post("/update", sessionAuth, func(c *fiber.Ctx) error {
		var req UpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		p, err := svc.Update(c.Context(), auth.ActorFromCtx(c).UserID, req)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(p)
	})

	r.Get("/:username", profileAuth, func(c *fiber.Ctx) error {
		p, err := svc.ProfileByUsername(c.Context(), c.Params("username"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(p)
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
