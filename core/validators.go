package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	objectIDTag   = "objectid"
	objectIDText  = "must be a valid resource id"
	objectIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

	cnPhoneTag   = "cnphone"
	cnPhoneText  = "must be a valid phone number"
	cnPhoneRegex = regexp.MustCompile(`^1[3-9]\d{9}$`)

	zipCodeTag   = "zipcode"
	zipCodeText  = "must be a 6-digit zip code"
	zipCodeRegex = regexp.MustCompile(`^\d{6}$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(objectIDTag, regexValidation(objectIDRegex))
	RegisterCustomTranslation(validate, translator, objectIDTag, objectIDText)

	_ = validate.RegisterValidation(cnPhoneTag, regexValidation(cnPhoneRegex))
	RegisterCustomTranslation(validate, translator, cnPhoneTag, cnPhoneText)

	_ = validate.RegisterValidation(zipCodeTag, regexValidation(zipCodeRegex))
	RegisterCustomTranslation(validate, translator, zipCodeTag, zipCodeText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}
