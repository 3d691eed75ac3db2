package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const DateLayout = "2006-01-02"

// ErrorHandler renders *fiber.Error as {"error": msg}; anything else is logged and hidden.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	zap.L().Error("unexpected error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "unexpected server error",
	})
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks validate tags and reports the first failing field as a 400.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fiber.NewError(fiber.StatusBadRequest, describe(fe))
	}
	return fiber.NewError(fiber.StatusBadRequest, "invalid request")
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must use the format %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// ParseBody decodes the request body and validates it.
func ParseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return Validate(out)
}

// ParamID reads a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}

// QueryUint reads an optional positive numeric query parameter. ok is false when absent.
func QueryUint(c *fiber.Ctx, name string) (uint, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, false, fiber.NewError(fiber.StatusBadRequest, name+" is invalid")
	}
	return uint(v), true, nil
}

// ParseDate parses YYYY-MM-DD in UTC.
func ParseDate(s, field string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, field+" must use the format YYYY-MM-DD")
	}
	return d, nil
}

// QueryDate reads an optional YYYY-MM-DD query parameter.
func QueryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := ParseDate(raw, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DateRange reads from/to. A missing bound falls back to the calendar month of the other
// bound, or of now when both are missing. to is inclusive.
func DateRange(c *fiber.Ctx, now time.Time, maxDays int) (time.Time, time.Time, error) {
	from, err := QueryDate(c, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := QueryDate(c, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if from == nil {
		base := now.UTC()
		if to != nil {
			base = *to
		}
		start := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC)
		from = &start
	}
	if to == nil {
		base := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := base.AddDate(0, 1, -1)
		to = &end
	}
	if from.After(*to) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from cannot be after to")
	}
	if maxDays > 0 && int(to.Sub(*from).Hours()/24)+1 > maxDays {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("date range cannot exceed %d days", maxDays))
	}
	return *from, *to, nil
}

// EndOfDay returns the last instant of d's day, for inclusive "to" filters.
func EndOfDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
