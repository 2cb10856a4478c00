package checkout

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod selects how the order is paid.
type PaymentMethod string

const (
	// PaymentCOD is cash on delivery. It carries a surcharge and requires
	// the basket subtotal to meet the COD minimum.
	PaymentCOD PaymentMethod = "cod"
	// PaymentOnline goes through the external payment gateway first.
	PaymentOnline PaymentMethod = "online"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// DefaultCountry fills Address.Country when left blank.
const DefaultCountry = "India"

// Field names used as FieldErrors keys.
const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldAddress       = "address"
	FieldCity          = "city"
	FieldState         = "state"
	FieldPostalCode    = "postalCode"
	FieldCountry       = "country"
	FieldPaymentMethod = "paymentMethod"
	FieldDiscountCode  = "discountCode"
)

// Address is the shipping and contact block of the checkout form.
type Address struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Form is everything the shopper enters on the checkout page.
type Form struct {
	Shipping      Address
	PaymentMethod PaymentMethod
}

// Normalize trims every field and applies the default country.
func (f Form) Normalize() Form {
	a := &f.Shipping
	for _, s := range []*string{&a.Name, &a.Email, &a.Phone, &a.Address, &a.City, &a.State, &a.PostalCode, &a.Country} {
		*s = strings.TrimSpace(*s)
	}
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	f.PaymentMethod = PaymentMethod(strings.ToLower(strings.TrimSpace(string(f.PaymentMethod))))
	return f
}

// FieldErrors maps a form field to a human-readable problem. It is returned
// as an error when non-empty.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("invalid checkout form: ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(e[f])
	}
	return b.String()
}

// Err returns e as an error, or nil when empty.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Has reports whether field has an error.
func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// ValidateForm checks the normalized form against the basket subtotal.
// The COD minimum is reported on the payment method field only; the other
// fields are checked regardless.
func ValidateForm(f Form, subtotal decimal.Decimal, p Policy) FieldErrors {
	errs := FieldErrors{}
	a := f.Shipping

	required := []struct{ field, value string }{
		{FieldName, a.Name},
		{FieldAddress, a.Address},
		{FieldCity, a.City},
		{FieldState, a.State},
		{FieldCountry, a.Country},
	}
	for _, r := range required {
		if r.value == "" {
			errs[r.field] = "required"
		}
	}

	switch {
	case a.Email == "":
		errs[FieldEmail] = "required"
	case !validEmail(a.Email):
		errs[FieldEmail] = "must be a valid email address"
	}
	switch {
	case a.Phone == "":
		errs[FieldPhone] = "required"
	case !allDigits(a.Phone, 10):
		errs[FieldPhone] = "must be 10 digits"
	}
	switch {
	case a.PostalCode == "":
		errs[FieldPostalCode] = "required"
	case !allDigits(a.PostalCode, 6):
		errs[FieldPostalCode] = "must be 6 digits"
	}

	if msg := p.paymentProblem(f.PaymentMethod, subtotal); msg != "" {
		errs[FieldPaymentMethod] = msg
	}
	return errs
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
		return false
	}
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
