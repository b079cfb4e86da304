package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Policy is how a parameter outside its declared range is handled.
type Policy int

const (
	// PolicyNone accepts any finite value.
	PolicyNone Policy = iota
	// PolicyClamp moves the value to the nearest bound and logs a warning.
	PolicyClamp
	// PolicyReset replaces the value with the default and logs a warning.
	PolicyReset
	// PolicyReject fails the job with InvalidParameter.
	PolicyReject
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyClamp:
		return "clamp"
	case PolicyReset:
		return "reset"
	case PolicyReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Parameter names on the wire.
const (
	ParamExaggeration      = "exaggeration"
	ParamTemperature       = "temperature"
	ParamCFGWeight         = "cfg_weight"
	ParamMinP              = "min_p"
	ParamTopP              = "top_p"
	ParamRepetitionPenalty = "repetition_penalty"
	ParamSpeed             = "speed"
	ParamSeed              = "seed"
)

// ParamSpec declares the default, range and out-of-range policy of one numeric parameter.
type ParamSpec struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
	Policy  Policy
}

// DefaultParamSpecs returns the declared table for every float parameter.
func DefaultParamSpecs() []ParamSpec {
	return []ParamSpec{
		{Name: ParamExaggeration, Default: 0.5, Min: 0.25, Max: 2.0, Policy: PolicyClamp},
		{Name: ParamTemperature, Default: 0.8, Min: 0.05, Max: 5.0, Policy: PolicyClamp},
		{Name: ParamCFGWeight, Default: 0.5, Min: 0.0, Max: 1.0, Policy: PolicyClamp},
		{Name: ParamMinP, Default: 0.05, Min: 0.0, Max: 1.0, Policy: PolicyReject},
		{Name: ParamTopP, Default: 1.0, Min: 0.0, Max: 1.0, Policy: PolicyReject},
		{Name: ParamRepetitionPenalty, Default: 1.2, Min: 1.0, Max: math.Inf(1), Policy: PolicyReject},
		{Name: ParamSpeed, Default: 1.0, Min: 0.5, Max: 2.0, Policy: PolicyReset},
	}
}

func (s ParamSpec) inRange(value float64) bool {
	return value >= s.Min && value <= s.Max
}

// apply returns the value to use and whether it was adjusted.
func (s ParamSpec) apply(value float64) (float64, bool, error) {
	if s.inRange(value) {
		return value, false, nil
	}

	switch s.Policy {
	case PolicyNone:
		return value, false, nil
	case PolicyClamp:
		return math.Max(s.Min, math.Min(s.Max, value)), true, nil
	case PolicyReset:
		return s.Default, true, nil
	case PolicyReject:
		return 0, false, fmt.Errorf("%g is outside [%g, %g]", value, s.Min, s.Max)
	default:
		return 0, false, fmt.Errorf("unknown policy %d", s.Policy)
	}
}

// toFloat coerces a JSON value into a finite float64.
func toFloat(value any) (float64, error) {
	var number float64

	switch typed := value.(type) {
	case float64:
		number = typed
	case float32:
		number = float64(typed)
	case int:
		number = float64(typed)
	case int64:
		number = float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", typed.String())
		}

		number = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", typed)
		}

		number = parsed
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}

	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, fmt.Errorf("%g is not finite", number)
	}

	return number, nil
}

// toInt coerces a JSON value into an integer; fractional numbers are rejected.
// Integers that arrive as text or json.Number are parsed exactly.
func toInt(value any) (int64, error) {
	switch typed := value.(type) {
	case int:
		return int64(typed), nil
	case int64:
		return typed, nil
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed, nil
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed, nil
		}
	}

	number, err := toFloat(value)
	if err != nil {
		return 0, err
	}

	if number != math.Trunc(number) {
		return 0, fmt.Errorf("%g is not an integer", number)
	}

	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if number >= math.MaxInt64 || number < math.MinInt64 {
		return 0, fmt.Errorf("%g overflows a 64-bit integer", number)
	}

	return int64(number), nil
}
