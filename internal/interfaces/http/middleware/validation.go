package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// RegisterValidators installs custom binding validators on gin's
// validator engine. Call once at startup before routes are served.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	// syncsource accepts the wire name of a known sync source.
	if err := v.RegisterValidation("syncsource", func(fl validator.FieldLevel) bool {
		_, err := syncdomain.ParseSource(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("register syncsource validator: %w", err)
	}
	return nil
}
