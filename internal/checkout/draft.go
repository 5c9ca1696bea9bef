package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultPaymentMethod = "bacs"
	DefaultCountry       = "US"
)

type AddressForm struct {
	FirstName string `json:"firstName" validate:"notblank"`
	LastName  string `json:"lastName" validate:"notblank"`
	Address1  string `json:"address1" validate:"notblank"`
	Address2  string `json:"address2"`
	City      string `json:"city" validate:"notblank"`
	State     string `json:"state"`
	Postcode  string `json:"postcode" validate:"notblank"`
	Country   string `json:"country"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

// Form is the checkout form as submitted by the shopper.
type Form struct {
	Billing                AddressForm  `json:"billing"`
	Shipping               *AddressForm `json:"shipping,omitempty" validate:"-"`
	ShipToDifferentAddress bool         `json:"shipToDifferentAddress"`
	PaymentMethod          string       `json:"paymentMethod"`
	IsPaid                 bool         `json:"isPaid"`
	TransactionID          string       `json:"transactionId"`
	TermsAccepted          bool         `json:"termsAccepted" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		f := sl.Current().Interface().(Form)
		if strings.TrimSpace(f.Billing.Email) == "" {
			sl.ReportError(f.Billing.Email, "billing.email", "Email", "required", "")
		}
		if strings.TrimSpace(f.Billing.Phone) == "" {
			sl.ReportError(f.Billing.Phone, "billing.phone", "Phone", "required", "")
		}
	}, Form{})
	return v
}

// Validate checks the fields the billing form marks as required, and the
// shipping address when the order ships elsewhere.
func (f Form) Validate() error {
	fields := map[string]string{}
	collectFieldErrors(fields, "", validate.Struct(f))
	if f.ShipToDifferentAddress {
		if f.Shipping == nil {
			fields["shipping"] = "required when shipping to a different address"
		} else {
			collectFieldErrors(fields, "shipping.", validate.Struct(f.Shipping))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// collectFieldErrors keys each failure by its json path below the validated
// struct. A "required" message is never replaced by a format message.
func collectFieldErrors(fields map[string]string, prefix string, err error) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return
	}
	for _, fe := range errs {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		key := prefix + path
		if fields[key] == "required" {
			continue
		}
		fields[key] = fieldMessage(key, fe.Tag())
	}
}

func fieldMessage(key, tag string) string {
	switch {
	case key == "termsAccepted":
		return "terms must be accepted"
	case tag == "email":
		return "invalid email address"
	default:
		return "required"
	}
}

// Defaults fill the draft when the form leaves a field unset.
type Defaults struct {
	PaymentMethod string
	Country       string
}

// NewDraft turns a validated form into the mutation input, stamped with token.
func NewDraft(f Form, d Defaults, token string) domain.CheckoutInput {
	if d.PaymentMethod == "" {
		d.PaymentMethod = DefaultPaymentMethod
	}
	if d.Country == "" {
		d.Country = DefaultCountry
	}

	billing := toAddress(f.Billing, d.Country)
	shipping := billing
	shipToDifferent := f.ShipToDifferentAddress && f.Shipping != nil
	if shipToDifferent {
		shipping = toAddress(*f.Shipping, d.Country)
	}

	method := strings.TrimSpace(f.PaymentMethod)
	if method == "" {
		method = d.PaymentMethod
	}

	return domain.CheckoutInput{
		ClientMutationID:       token,
		Billing:                billing,
		Shipping:               shipping,
		ShipToDifferentAddress: shipToDifferent,
		PaymentMethod:          method,
		IsPaid:                 f.IsPaid,
		TransactionID:          f.TransactionID,
	}
}

func NewToken() string {
	return uuid.NewString()
}

func toAddress(a AddressForm, defaultCountry string) domain.Address {
	country := strings.TrimSpace(a.Country)
	if country == "" {
		country = defaultCountry
	}
	return domain.Address{
		FirstName: strings.TrimSpace(a.FirstName),
		LastName:  strings.TrimSpace(a.LastName),
		Address1:  strings.TrimSpace(a.Address1),
		Address2:  strings.TrimSpace(a.Address2),
		City:      strings.TrimSpace(a.City),
		Country:   country,
		State:     strings.TrimSpace(a.State),
		Postcode:  strings.TrimSpace(a.Postcode),
		Email:     strings.TrimSpace(a.Email),
		Phone:     strings.TrimSpace(a.Phone),
		Company:   strings.TrimSpace(a.Company),
	}
}
