package lifecycle

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"rentalintake/models"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type submissionValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newSubmissionValidator() *submissionValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.ToLower(f.Name)
	})
	return &submissionValidator{validate: v, translator: trans}
}

func (s *submissionValidator) check(app models.NewApplication) error {
	err := s.validate.Struct(app)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(s.translator))
	}
	return models.Validation(strings.Join(msgs, "; "))
}

// clean trims surrounding space and drops control characters.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func sanitize(app models.NewApplication) models.NewApplication {
	app.FirstName = clean(app.FirstName)
	app.LastName = clean(app.LastName)
	app.Email = clean(app.Email)
	return app
}
