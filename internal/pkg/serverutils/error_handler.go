package serverutils

import (
	"errors"
	"fmt"

	"logistics-admin-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return ctx.Status(code).JSON(fiber.Map{"error": message})
}

// ErrorHandlerMiddleware turns panics into 500s and renders handler errors
// the same way as ErrorHandler.
func ErrorHandlerMiddleware(log logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(ctx *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP", "Recovered from panic", map[string]interface{}{
					"path":  ctx.Path(),
					"panic": fmt.Sprint(r),
				})
				err = ErrorHandler(ctx, fiber.ErrInternalServerError)
			}
		}()

		if err := ctx.Next(); err != nil {
			var fe *fiber.Error
			if !errors.As(err, &fe) {
				log.Error("HTTP", "Unhandled error", map[string]interface{}{"path": ctx.Path(), "error": err.Error()})
			}
			return ErrorHandler(ctx, err)
		}
		return nil
	}
}
