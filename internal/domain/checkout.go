package domain

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SupportedCountries mirrors the countries the commerce backend accepts.
// Anything else is rejected before a request is made.
var SupportedCountries = []string{"IN", "US", "GB", "CA", "AU", "AE", "SG", "MY", "NZ", "DE", "FR", "JP"}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\s\-\(\)]{8,20}$`)
)

type Contact struct {
	FirstName string `json:"firstName" validate:"notblank"`
	LastName  string `json:"lastName" validate:"notblank"`
	Email     string `json:"email" validate:"notblank,storefront_email"`
	Phone     string `json:"phone" validate:"notblank,storefront_phone"`
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Address struct {
	Line1       string `json:"address1" validate:"notblank"`
	Line2       string `json:"address2,omitempty"`
	City        string `json:"city" validate:"notblank"`
	State       string `json:"state" validate:"notblank"`
	PostalCode  string `json:"postcode" validate:"notblank"`
	CountryCode string `json:"country" validate:"notblank,storefront_country"`
}

func (a Address) OneLine() string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City, a.State, a.PostalCode, a.CountryCode)
	return strings.Join(parts, ", ")
}

// CheckoutForm is the buyer input collected for one checkout session.
// A nil Billing means "same as shipping".
type CheckoutForm struct {
	Contact      Contact  `json:"contact"`
	Shipping     Address  `json:"shipping"`
	Billing      *Address `json:"billing,omitempty" validate:"omitempty"`
	CustomerNote string   `json:"customerNote,omitempty" validate:"max=1000"`
}

func (f CheckoutForm) BillingAddress() Address {
	if f.Billing != nil {
		return *f.Billing
	}
	return f.Shipping
}

func IsSupportedCountry(code string) bool {
	return slices.Contains(SupportedCountries, code)
}

var fieldLabels = map[string]string{
	"firstName": "First Name",
	"lastName":  "Last Name",
	"email":     "Email",
	"phone":     "Phone",
	"address1":  "Address",
	"city":      "City",
	"state":     "State",
	"postcode":  "ZIP Code",
	"country":   "Country",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("storefront_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("storefront_phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("storefront_country", func(fl validator.FieldLevel) bool {
		return IsSupportedCountry(fl.Field().String())
	})
	return v
}

// ValidateCheckoutForm applies the checkout rules and returns a
// *ValidationError keyed by form field, or nil. Shipping and contact fields
// use their bare key ("country"); billing fields are prefixed ("billing.country").
func ValidateCheckoutForm(f CheckoutForm) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = fieldMessage(fe.Field(), fe.Tag())
	}
	return NewValidationError(fields)
}

func fieldKey(namespace string) string {
	segs := strings.Split(namespace, ".")
	if len(segs) > 1 {
		segs = segs[1:]
	}
	if len(segs) > 1 && (segs[0] == "shipping" || segs[0] == "contact") {
		segs = segs[1:]
	}
	return strings.Join(segs, ".")
}

func fieldMessage(field, tag string) string {
	label := fieldLabels[field]
	if label == "" {
		label = field
	}
	switch tag {
	case "notblank":
		return label + " is required"
	case "storefront_email":
		return "Please enter a valid email address"
	case "storefront_phone":
		return "Please enter a valid phone number"
	case "storefront_country":
		return "Please select a valid country from the dropdown"
	case "max":
		return label + " is too long"
	}
	return label + " is invalid"
}
