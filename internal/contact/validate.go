package contact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dalemusser/contactrelay/pantry/text"
	"github.com/go-playground/validator/v10"
)

// Field error messages, in the order they are reported.
const (
	ErrName    = "Name is required."
	ErrEmail   = "A valid email is required."
	ErrMessage = "Message must be at least 10 characters."
	ErrPhone   = "Please enter a valid phone number."
)

// DefaultSpamTerms are matched case- and accent-insensitively against the
// name and message.
var DefaultSpamTerms = []string{"viagra", "cialis", "casino", "lottery", "winner", "[url=", "[link="}

var phonePattern = regexp.MustCompile(`^[+]?[0-9\s\-()]{7,20}$`)

// fields carries the rules; struct order is report order.
type fields struct {
	Name    string `validate:"required,min=2"`
	Email   string `validate:"required,email"`
	Message string `validate:"required,min=10"`
	Phone   string `validate:"omitempty,phone"`
}

var fieldMessages = map[string]string{
	"Name":    ErrName,
	"Email":   ErrEmail,
	"Message": ErrMessage,
	"Phone":   ErrPhone,
}

// Result is the outcome of validating a sanitized form.
type Result struct {
	Errors []string

	// Spam is set when the denylist matched; SpamTerm is the term.
	Spam     bool
	SpamTerm string
}

// OK reports whether the form may be sent.
func (r Result) OK() bool { return !r.Spam && len(r.Errors) == 0 }

// Message joins the field errors with single spaces.
func (r Result) Message() string { return strings.Join(r.Errors, " ") }

// Validator checks sanitized forms. It is safe for concurrent use.
type Validator struct {
	v    *validator.Validate
	spam *text.Denylist
}

// NewValidator builds a validator with the given spam terms; nil means
// DefaultSpamTerms.
func NewValidator(spamTerms []string) *Validator {
	if spamTerms == nil {
		spamTerms = DefaultSpamTerms
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerPattern(v, "phone", phonePattern); err != nil {
		panic(err)
	}
	return &Validator{v: v, spam: text.NewDenylist(spamTerms...)}
}

// registerPattern adds a tag that passes when the field matches re.
func registerPattern(v *validator.Validate, tag string, re *regexp.Regexp) error {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		return fmt.Errorf("register %q rule: %w", tag, err)
	}
	return nil
}

// Validate applies the field rules and the spam scan to a sanitized form.
// A spam match is reported alone, without field errors.
func (val *Validator) Validate(f Form) Result {
	if term, ok := val.spam.Match(f.Name + " " + f.Message); ok {
		return Result{Spam: true, SpamTerm: term}
	}

	err := val.v.Struct(fields{Name: f.Name, Email: f.Email, Message: f.Message, Phone: f.Phone})
	if err == nil {
		return Result{}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Result{Errors: []string{err.Error()}}
	}

	var res Result
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		res.Errors = append(res.Errors, fieldMessages[fe.Field()])
	}
	return res
}
