package device

import (
	"math"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/pkg/errors"
)

// Calibration converts raw load-cell samples to Newtons. The conversion
// is a user-supplied expression over named inputs and derived
// intermediates, so a new sensor only needs a config change, not a
// rebuild.
type Calibration struct {
	Inputs        map[string]float64 `json:"inputs"`
	Intermediates map[string]string  `json:"intermediates"`
	Expression    string             `json:"expression"`

	program *vm.Program
	env     map[string]interface{}
}

var stdenv = map[string]interface{}{
	"pi":     math.Pi,
	"sin":    math.Sin,
	"cos":    math.Cos,
	"tan":    math.Tan,
	"asin":   math.Asin,
	"acos":   math.Acos,
	"atan":   math.Atan,
	"sqrt":   math.Sqrt,
	"sample": 0.0,
}

// DefaultCalibration is an identity-ish conversion for a pre-scaled
// sensor.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Inputs:     map[string]float64{"scale": 1.0, "offset": 0.0},
		Expression: "sample*scale + offset",
	}
}

// Prepare resolves intermediates and compiles the expression. Called at
// startup and again on every Calibrate command.
func (c *Calibration) Prepare() error {
	env := map[string]interface{}{}
	for k, v := range stdenv {
		env[k] = v
	}
	for k, v := range c.Inputs {
		env[k] = v
	}
	for k, v := range c.Intermediates {
		p, err := expr.Compile(v, expr.Env(env))
		if err != nil {
			return errors.Wrapf(err, "compile intermediate %q", k)
		}
		out, err := expr.Run(p, env)
		if err != nil {
			return errors.Wrapf(err, "evaluate intermediate %q", k)
		}
		f, ok := out.(float64)
		if !ok {
			return errors.Errorf("intermediate %q is not a number", k)
		}
		env[k] = f
	}
	program, err := expr.Compile(c.Expression, expr.Env(env))
	if err != nil {
		return errors.Wrap(err, "compile calibration expression")
	}
	c.program = program
	c.env = env
	return nil
}

// Evaluate maps one raw sample to a force. Prepare must have succeeded.
func (c *Calibration) Evaluate(sample float64) (float64, error) {
	if c.program == nil {
		return math.NaN(), errors.New("calibration not prepared")
	}
	c.env["sample"] = sample
	out, err := expr.Run(c.program, c.env)
	if err != nil {
		return math.NaN(), err
	}
	f, ok := out.(float64)
	if !ok {
		return math.NaN(), errors.New("calibration expression is not a number")
	}
	return f, nil
}
