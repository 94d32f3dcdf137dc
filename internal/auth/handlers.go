package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, sessionMiddleware fiber.Handler) {
	r.Post("/request", func(c *fiber.Ctx) error {
		var req RequestLinkRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.RequestLink(c.Context(), req.Email); err != nil {
			if errors.Is(err, ErrInvalidEmail) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to send sign-in link")
		}
		return c.JSON(fiber.Map{"message": "sign-in link sent"})
	})

	r.Get("/verify", func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "token required")
		}
		resp, err := svc.Verify(c.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to verify sign-in link")
		}
		return c.JSON(resp)
	})

	r.Get("/me", sessionMiddleware, func(c *fiber.Ctx) error {
		user, err := svc.Me(c.Context(), ActorFromCtx(c).UserID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return c.JSON(user)
	})
}
