package dispatch

import (
	"net/netip"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jroosing/labnet/internal/errs"
)

// ParamType is the semantic type of a function parameter.
type ParamType string

const (
	TypeInteger  ParamType = "INTEGER"
	TypeIP       ParamType = "IP"
	TypeNetwork  ParamType = "IP_NETWORK"
	TypeBool     ParamType = "BOOLEAN"
	TypeDecimal  ParamType = "DECIMAL"
	TypeText     ParamType = "TEXT"
	TypeAdvText  ParamType = "ADVTEXT"
	TypeSimple   ParamType = "SIMPLE_STRING"
	TypePassword ParamType = "PASSWORD"
)

// Param declares one function parameter. A non-empty Choices makes it an
// enumeration and Type is ignored.
type Param struct {
	Name     string
	Type     ParamType
	Choices  []string
	Optional bool
}

// P declares a required parameter.
func P(name string, t ParamType) Param {
	return Param{Name: name, Type: t}
}

// Opt declares a parameter that may be omitted; it then reads as the zero value.
func Opt(name string, t ParamType) Param {
	return Param{Name: name, Type: t, Optional: true}
}

// Enum declares a required enumeration parameter.
func Enum(name string, choices ...string) Param {
	return Param{Name: name, Choices: choices}
}

var (
	textRe    = regexp.MustCompile(`^[- \t,._A-Za-z0-9:=/#@!*]*$`)
	advTextRe = regexp.MustCompile(`^[- \t\n,._A-Za-z0-9:=/#@!*'"?&%$+;()\[\]{}<>|~^]*$`)
	simpleRe  = regexp.MustCompile(`^[-A-Za-z0-9]*$`)
	decimalRe = regexp.MustCompile(`^[0-9]+\.?[0-9]*$`)
)

// validator tags per semantic type. Custom tags are registered in newValidator.
var typeTags = map[ParamType]string{
	TypeInteger:  "number",
	TypeIP:       "ipv4",
	TypeNetwork:  "cidrv4",
	TypeBool:     "oneof=true false",
	TypeDecimal:  "labnet_decimal",
	TypeText:     "labnet_text",
	TypeAdvText:  "labnet_advtext",
	TypeSimple:   "labnet_simple",
	TypePassword: "labnet_text",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	rules := map[string]*regexp.Regexp{
		"labnet_decimal": decimalRe,
		"labnet_text":    textRe,
		"labnet_advtext": advTextRe,
		"labnet_simple":  simpleRe,
	}
	for tag, re := range rules {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic("dispatch: register validation " + tag + ": " + err.Error())
		}
	}
	return v
}

// Validate checks raw against params and returns the parsed arguments.
// Unknown keys in raw are ignored.
func Validate(params []Param, raw map[string]string) (Args, error) {
	args := Args{
		raw:  make(map[string]string, len(params)),
		vals: make(map[string]any, len(params)),
	}
	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok {
			if p.Optional {
				continue
			}
			return Args{}, errs.New(errs.Validation, "'%s' not set", p.Name)
		}
		val, err := p.parse(v)
		if err != nil {
			return Args{}, err
		}
		args.raw[p.Name] = v
		args.vals[p.Name] = val
	}
	return args, nil
}

func (p Param) parse(v string) (any, error) {
	if len(p.Choices) > 0 {
		if !slices.Contains(p.Choices, v) {
			return nil, errs.New(errs.Validation, "'%s' is not a valid selection from %s", v, strings.Join(p.Choices, "|"))
		}
		return v, nil
	}

	tag, ok := typeTags[p.Type]
	if !ok {
		return nil, errs.New(errs.Validation, "Invalid type '%s'", p.Type)
	}
	check := v
	if p.Type == TypeBool {
		check = strings.ToLower(v)
	}
	if err := validate.Var(check, tag); err != nil {
		return nil, p.invalid(v)
	}

	switch p.Type {
	case TypeInteger:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, p.invalid(v)
		}
		return n, nil
	case TypeIP:
		a, err := netip.ParseAddr(v)
		if err != nil || !a.Unmap().Is4() {
			return nil, p.invalid(v)
		}
		return a.Unmap(), nil
	case TypeNetwork:
		pr, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, p.invalid(v)
		}
		return pr.Masked(), nil
	case TypeBool:
		return check == "true", nil
	case TypeDecimal:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, p.invalid(v)
		}
		return f, nil
	default:
		return v, nil
	}
}

func (p Param) invalid(v string) error {
	return errs.New(errs.Validation, "'%s' is not a valid '%s' for %s", v, p.Type, p.Name)
}

// Args are validated, typed function arguments.
type Args struct {
	raw  map[string]string
	vals map[string]any
}

// Raw returns a copy of the validated string arguments.
func (a Args) Raw() map[string]string {
	out := make(map[string]string, len(a.raw))
	for k, v := range a.raw {
		out[k] = v
	}
	return out
}

// Has reports whether name was supplied.
func (a Args) Has(name string) bool {
	_, ok := a.vals[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a.vals[name].(string)
	return s
}

func (a Args) Int(name string) int64 {
	n, _ := a.vals[name].(int64)
	return n
}

func (a Args) Addr(name string) netip.Addr {
	v, _ := a.vals[name].(netip.Addr)
	return v
}

func (a Args) Prefix(name string) netip.Prefix {
	v, _ := a.vals[name].(netip.Prefix)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a.vals[name].(bool)
	return v
}

func (a Args) Decimal(name string) float64 {
	v, _ := a.vals[name].(float64)
	return v
}
