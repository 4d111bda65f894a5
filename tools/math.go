// This file implements the math builtin tool, powered by the same
// expression-evaluation and statistics libraries the teacher's math tool
// used: govaluate and gonum.
package tools

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/deepbridge/llm-bridge/bridge"
	"gonum.org/v1/gonum/stat"
)

// mathDefinition describes the math tool: expression evaluation,
// statistics, linear equation solving, unit conversion, and random
// number generation.
var mathDefinition = bridge.ToolDefinition{
	Name:        "math",
	Description: "Perform mathematical operations: expression evaluation, statistics, equation solving, unit conversion, random generation",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation":   map[string]interface{}{"type": "string", "description": "Operation: evaluate, statistics, solve, convert, random"},
			"expression":  map[string]interface{}{"type": "string", "description": "Math expression for evaluate"},
			"numbers":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}, "description": "Numbers for statistics"},
			"stat_type":   map[string]interface{}{"type": "string", "description": "Statistics type: mean, median, stdev, variance, min, max, sum"},
			"equation":    map[string]interface{}{"type": "string", "description": "Linear equation to solve, e.g. x+5=10"},
			"value":       map[string]interface{}{"type": "number", "description": "Value to convert"},
			"from_unit":   map[string]interface{}{"type": "string", "description": "Source unit"},
			"to_unit":     map[string]interface{}{"type": "string", "description": "Target unit"},
			"random_type": map[string]interface{}{"type": "string", "description": "Random type: integer, float, choice"},
			"min":         map[string]interface{}{"type": "number", "description": "Min value for random integer/float"},
			"max":         map[string]interface{}{"type": "number", "description": "Max value for random integer/float"},
			"choices":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Choices for random choice"},
		},
		"required": []interface{}{"operation"},
	},
}

func mathHandler(ctx context.Context, call bridge.ToolCall, execCtx bridge.ToolExecutionContext) (interface{}, error) {
	var params struct {
		Operation  string    `json:"operation"`
		Expression string    `json:"expression"`
		Numbers    []float64 `json:"numbers"`
		StatType   string    `json:"stat_type"`
		Equation   string    `json:"equation"`
		Value      float64   `json:"value"`
		FromUnit   string    `json:"from_unit"`
		ToUnit     string    `json:"to_unit"`
		RandomType string    `json:"random_type"`
		Min        float64   `json:"min"`
		Max        float64   `json:"max"`
		Choices    []string  `json:"choices"`
	}
	if err := decodeParams(call.Parameters, &params); err != nil {
		return nil, err
	}

	switch params.Operation {
	case "evaluate":
		return evaluateExpression(params.Expression)
	case "statistics":
		return statistics(params.Numbers, params.StatType)
	case "solve":
		return solveLinearEquation(params.Equation)
	case "convert":
		return convertUnit(params.Value, params.FromUnit, params.ToUnit)
	case "random":
		return randomValue(params.RandomType, params.Min, params.Max, params.Choices)
	default:
		return nil, bridge.NewValidationError("math: unknown operation " + params.Operation)
	}
}

var mathFunctions = map[string]govaluate.ExpressionFunction{
	"sqrt":  func(args ...interface{}) (interface{}, error) { return math.Sqrt(args[0].(float64)), nil },
	"pow":   func(args ...interface{}) (interface{}, error) { return math.Pow(args[0].(float64), args[1].(float64)), nil },
	"sin":   func(args ...interface{}) (interface{}, error) { return math.Sin(args[0].(float64)), nil },
	"cos":   func(args ...interface{}) (interface{}, error) { return math.Cos(args[0].(float64)), nil },
	"tan":   func(args ...interface{}) (interface{}, error) { return math.Tan(args[0].(float64)), nil },
	"log":   func(args ...interface{}) (interface{}, error) { return math.Log10(args[0].(float64)), nil },
	"ln":    func(args ...interface{}) (interface{}, error) { return math.Log(args[0].(float64)), nil },
	"abs":   func(args ...interface{}) (interface{}, error) { return math.Abs(args[0].(float64)), nil },
	"ceil":  func(args ...interface{}) (interface{}, error) { return math.Ceil(args[0].(float64)), nil },
	"floor": func(args ...interface{}) (interface{}, error) { return math.Floor(args[0].(float64)), nil },
	"round": func(args ...interface{}) (interface{}, error) { return math.Round(args[0].(float64)), nil },
}

func evaluateExpression(expression string) (string, error) {
	if expression == "" {
		return "", bridge.NewValidationError("math: expression is required")
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, mathFunctions)
	if err != nil {
		return "", bridge.NewValidationError("math: invalid expression: " + err.Error())
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return "", bridge.NewValidationError("math: evaluation failed: " + err.Error())
	}
	switch v := result.(type) {
	case float64:
		return fmt.Sprintf("%.6f", v), nil
	case int:
		return fmt.Sprintf("%.6f", float64(v)), nil
	default:
		return "", bridge.NewValidationError("math: unexpected result type from evaluation")
	}
}

func statistics(numbers []float64, statType string) (string, error) {
	if len(numbers) == 0 {
		return "", bridge.NewValidationError("math: numbers array is required")
	}
	if statType == "" {
		return "", bridge.NewValidationError("math: stat_type is required")
	}

	var result float64
	switch statType {
	case "mean":
		result = stat.Mean(numbers, nil)
	case "median":
		sorted := append([]float64(nil), numbers...)
		sort.Float64s(sorted)
		result = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	case "stdev":
		result = stat.StdDev(numbers, nil)
	case "variance":
		result = stat.Variance(numbers, nil)
	case "min":
		result = floats64Min(numbers)
	case "max":
		result = floats64Max(numbers)
	case "sum":
		for _, n := range numbers {
			result += n
		}
	default:
		return "", bridge.NewValidationError("math: unknown stat_type " + statType)
	}
	return fmt.Sprintf("%.6f", result), nil
}

// solveLinearEquation solves equations of the shape "x+b=c" or "x-b=c".
func solveLinearEquation(equation string) (string, error) {
	if equation == "" {
		return "", bridge.NewValidationError("math: equation is required")
	}
	parts := strings.Split(equation, "=")
	if len(parts) != 2 {
		return "", bridge.NewValidationError("math: equation must contain '='")
	}
	left := strings.ReplaceAll(strings.TrimSpace(parts[0]), " ", "")
	right := strings.TrimSpace(parts[1])

	rightVal, err := strconv.ParseFloat(right, 64)
	if err != nil {
		return "", bridge.NewValidationError("math: invalid right-hand side value")
	}

	switch {
	case strings.HasPrefix(left, "x+"):
		b, _ := strconv.ParseFloat(left[2:], 64)
		return fmt.Sprintf("x = %.6f", rightVal-b), nil
	case strings.HasPrefix(left, "x-"):
		b, _ := strconv.ParseFloat(left[2:], 64)
		return fmt.Sprintf("x = %.6f", rightVal+b), nil
	case left == "x":
		return fmt.Sprintf("x = %.6f", rightVal), nil
	default:
		return "", bridge.NewValidationError("math: unsupported linear equation format")
	}
}

var (
	distanceUnits = map[string]float64{"km": 1000, "m": 1, "cm": 0.01, "mm": 0.001}
	weightUnits   = map[string]float64{"kg": 1000, "g": 1, "mg": 0.001}
	timeUnits     = map[string]float64{"hours": 3600, "minutes": 60, "seconds": 1}
)

func convertUnit(value float64, fromUnit, toUnit string) (string, error) {
	if fromUnit == "" || toUnit == "" {
		return "", bridge.NewValidationError("math: from_unit and to_unit are required")
	}
	fromUnit, toUnit = strings.ToLower(fromUnit), strings.ToLower(toUnit)

	if fromUnit == "celsius" && toUnit == "fahrenheit" {
		return fmt.Sprintf("%.6f %s", value*9/5+32, toUnit), nil
	}
	if fromUnit == "fahrenheit" && toUnit == "celsius" {
		return fmt.Sprintf("%.6f %s", (value-32)*5/9, toUnit), nil
	}

	for _, units := range []map[string]float64{distanceUnits, weightUnits, timeUnits} {
		fromFactor, fromOK := units[fromUnit]
		toFactor, toOK := units[toUnit]
		if fromOK && toOK {
			return fmt.Sprintf("%.6f %s", value*fromFactor/toFactor, toUnit), nil
		}
	}
	return "", bridge.NewValidationError(fmt.Sprintf("math: unsupported unit conversion from %q to %q", fromUnit, toUnit))
}

func randomValue(randomType string, minVal, maxVal float64, choices []string) (string, error) {
	if randomType == "" {
		return "", bridge.NewValidationError("math: random_type is required")
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	switch randomType {
	case "integer":
		if minVal >= maxVal {
			return "", bridge.NewValidationError("math: min must be less than max")
		}
		return fmt.Sprintf("%d", int(minVal)+rng.Intn(int(maxVal-minVal+1))), nil
	case "float":
		if minVal >= maxVal {
			return "", bridge.NewValidationError("math: min must be less than max")
		}
		return fmt.Sprintf("%.6f", minVal+rng.Float64()*(maxVal-minVal)), nil
	case "choice":
		if len(choices) == 0 {
			return "", bridge.NewValidationError("math: choices array is required")
		}
		return choices[rng.Intn(len(choices))], nil
	default:
		return "", bridge.NewValidationError("math: unknown random_type " + randomType)
	}
}

func floats64Min(numbers []float64) float64 {
	m := numbers[0]
	for _, n := range numbers {
		if n < m {
			m = n
		}
	}
	return m
}

func floats64Max(numbers []float64) float64 {
	m := numbers[0]
	for _, n := range numbers {
		if n > m {
			m = n
		}
	}
	return m
}
