package scanner

import (
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/HerbHall/ipscan/pkg/models"
)

// MaxManualNameLength bounds a manual name, counted in characters.
const MaxManualNameLength = 64

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
	return v
}

// ValidateConfig checks cfg field bounds and that its range expands.
func ValidateConfig(cfg models.ScanConfig) error {
	_, err := prepare(cfg)
	return err
}

// prepare validates cfg and returns the expanded address list.
func prepare(cfg models.ScanConfig) ([]netip.Addr, error) {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, fieldError(fieldErrs[0])
		}
		return nil, invalid("config", "%v", err)
	}
	return ExpandRange(cfg.Range)
}

func fieldError(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "must not be empty")
	case "min":
		return invalid(fe.Field(), "must be at least %s", fe.Param())
	case "max":
		return invalid(fe.Field(), "must be at most %s", fe.Param())
	default:
		return invalid(fe.Field(), "failed %q check", fe.Tag())
	}
}

// NormalizeManualName trims name and checks it against MaxManualNameLength.
// An empty result means "clear".
func NormalizeManualName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n > MaxManualNameLength {
		return "", invalid("name", "%d characters exceeds the limit of %d", n, MaxManualNameLength)
	}
	return name, nil
}

// NormalizeIP parses ip as an IPv4 address and returns its canonical form.
func NormalizeIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || !addr.Is4() {
		return "", invalid("ip", "%q is not an IPv4 address", ip)
	}
	return addr.String(), nil
}
