package grade

import (
	"github.com/go-playground/validator/v10"

	"github.com/susahesumudu/mit-erp/core"
)

var (
	genderTag  = "gender"
	genderText = "gender must be one of M, F or O"
)

func init() {
	_ = core.Validate.RegisterValidation(genderTag, genderValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, genderTag, genderText)
}

func genderValidation(fl validator.FieldLevel) bool {
	return Gender(fl.Field().String()).Valid()
}

// SetGender is the payload for updating a student's profile.
type SetGender struct {
	Gender string `json:"gender" validate:"required,gender"`
}
