package models

import (
	"sync"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/go-playground/validator/v10"
)

var ErrInvalid = oops.NewCoded(oops.KindValidation, "invalid", "")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the `validate` struct tags of a model. The returned error
// matches ErrInvalid and lists every failing field.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msg := ""
		for i, fe := range verrs {
			if i > 0 {
				msg += "; "
			}
			msg += fe.Field() + " failed " + fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
		}
		return oops.NewCoded(oops.KindValidation, ErrInvalid.Code, msg)
	}
	return oops.New(err, "failed to validate %T", v)
}
