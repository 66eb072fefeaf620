package board

import (
	"math"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/maplab/internal/models"
)

// MaxTextLength is the longest note text accepted from clients, in runes.
const MaxTextLength = 10000

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ValidatePatch checks a client supplied patch. Out of range numbers are
// not errors; they are clamped when the patch is applied.
func ValidatePatch(p *models.Patch) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.X, validation.By(finite)),
		validation.Field(&p.Y, validation.By(finite)),
		validation.Field(&p.Width, validation.By(finite)),
		validation.Field(&p.Height, validation.By(finite)),
		validation.Field(&p.FillOpacity, validation.By(finite)),
		validation.Field(&p.StrokeOpacity, validation.By(finite)),
		validation.Field(&p.StrokeWidth, validation.By(finite)),
		validation.Field(&p.Text, validation.RuneLength(0, MaxTextLength)),
		validation.Field(&p.FillColor, validation.NilOrNotEmpty, validation.Match(hexColor)),
		validation.Field(&p.StrokeColor, validation.NilOrNotEmpty, validation.Match(hexColor)),
		validation.Field(&p.FontClassName, validation.NilOrNotEmpty, validation.By(knownFont)),
	)
}

func finite(value any) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return validation.NewError("validation_not_finite", "must be a finite number")
	}
	return nil
}

func knownFont(value any) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	if s, ok := v.(string); ok && s != "" && !IsKnownFont(s) {
		return validation.NewError("validation_unknown_font", "must be a known font class name")
	}
	return nil
}
