package escalation

import (
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestNormalizeIsIdempotentProperty checks that Normalize has no residual
// structure left for a second pass to strip: applying it twice must equal
// applying it once, for any input string.
func TestNormalizeIsIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			twice := Normalize(once)
			return once == twice
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestNormalizeProducesNoLowercaseProperty checks the `~` operator's
// case-insensitivity guarantee holds for arbitrary input: Normalize never
// leaves a lowercase letter behind.
func TestNormalizeProducesNoLowercaseProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("output contains no lowercase letters", prop.ForAll(
		func(s string) bool {
			out := Normalize(s)
			for _, r := range out {
				if unicode.IsLower(r) {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestNormalizeIgnoresSurroundingWhitespaceProperty checks that padding an
// input with arbitrary leading/trailing whitespace never changes its
// normalized form, the property the `~` operator relies on to match
// loosely-formatted model output against an escalation phrase.
func TestNormalizeIgnoresSurroundingWhitespaceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("leading/trailing whitespace padding is a no-op", prop.ForAll(
		func(s, pad string) bool {
			padded := strings.Repeat(" ", len(pad)%5) + s + strings.Repeat("\t", len(pad)%3)
			return Normalize(padded) == Normalize(s)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
