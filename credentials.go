package onesession

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Credentials are what the signup and signin forms collect
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks credentials before they are sent anywhere
func (c Credentials) Validate() error {
	c.Email = strings.TrimSpace(c.Email)
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			return fmt.Errorf("%s is required", strings.ToLower(fe.Field()))
		case fe.Field() == "Email":
			return errors.New("invalid email format")
		}
	}
	return err
}
