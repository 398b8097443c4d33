package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// requestError body o parámetros inválidos; ErrorHandler lo responde como 400.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

// bindAndValidate parsea el body en dst y aplica las etiquetas validate.
func bindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return &requestError{code: "INVALID_BODY", message: "cuerpo inválido"}
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{code: "VALIDATION", message: validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
