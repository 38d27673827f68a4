package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// Rule kinds.
const (
	RuleTypeValidation     = config.RuleTypeValidation
	RuleTypeTransformation = config.RuleTypeTransformation
	RuleTypeEnrichment     = config.RuleTypeEnrichment
)

// errNotString is returned when a transformation finds a non-string value.
var errNotString = errors.New("value is not a string")

// execEnv carries what rule executors need besides the record.
type execEnv struct {
	now     time.Time
	loc     *time.Location
	newUUID func() string
}

// ruleFunc applies one rule. It must not mutate its input; rules that
// write return a modified copy.
type ruleFunc func(r Record, env *execEnv) (Record, error)

// compiledRule is a business rule ready to run.
type compiledRule struct {
	index int
	rule  config.Rule
	guard *guard
	exec  ruleFunc
}

// displayName is the rule's name, or its position when unnamed.
func (c *compiledRule) displayName() string {
	if c.rule.Name != "" {
		return c.rule.Name
	}
	return fmt.Sprintf("#%d", c.index)
}

// ruleSet is an immutable compiled configuration.
type ruleSet struct {
	rules                []compiledRule
	errorHandlingEnabled bool
	strict               bool
	loc                  *time.Location
	batchConcurrency     int
}

// compileRuleSet validates cfg and compiles every rule and guard.
func compileRuleSet(cfg *config.TransformerConfig, env *cel.Env) (*ruleSet, error) {
	v := config.NewValidator()
	v.ValidateTransformer(cfg, "transformer")
	if errs := v.Errors(); errs.HasErrors() {
		return nil, util.NewConfigErrorWithCause("transformer", "invalid rule set", errs)
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, util.NewConfigErrorWithCause("transformer.timezone", "unknown timezone", err)
		}
		loc = l
	}

	rs := &ruleSet{
		rules:                make([]compiledRule, 0, len(cfg.BusinessRules)),
		errorHandlingEnabled: cfg.ErrorHandlingEnabled,
		strict:               cfg.StrictRules,
		loc:                  loc,
		batchConcurrency:     cfg.BatchConcurrency,
	}

	for i, rule := range cfg.BusinessRules {
		path := fmt.Sprintf("transformer.businessRules[%d]", i)

		exec, err := compileRule(rule)
		if err != nil {
			return nil, util.NewConfigErrorWithCause(path, "invalid rule", err)
		}

		cr := compiledRule{index: i, rule: rule, exec: exec}
		if rule.When != "" {
			g, err := compileGuard(env, rule.When)
			if err != nil {
				return nil, util.NewConfigErrorWithCause(path+".when", "invalid guard expression", err)
			}
			cr.guard = g
		}
		rs.rules = append(rs.rules, cr)
	}

	return rs, nil
}

func compileRule(rule config.Rule) (ruleFunc, error) {
	switch rule.Type {
	case RuleTypeValidation:
		return compileValidation(rule)
	case RuleTypeTransformation:
		return compileTransformation(rule)
	case RuleTypeEnrichment:
		return compileEnrichment(rule)
	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// compileValidation builds a validation rule. Validation never writes.
func compileValidation(rule config.Rule) (ruleFunc, error) {
	field := rule.Field

	switch rule.Condition {
	case config.ConditionRequired:
		return func(r Record, _ *execEnv) (Record, error) {
			v, _ := GetPath(r, field)
			if util.IsFalsy(v) {
				return nil, util.NewRuleValidationError(field, config.ConditionRequired, "field is required")
			}
			return r, nil
		}, nil

	case config.ConditionMinLength, config.ConditionMaxLength:
		bound, err := config.ParseLength(rule.Value)
		if err != nil {
			return nil, err
		}
		condition := rule.Condition
		return func(r Record, _ *execEnv) (Record, error) {
			v, _ := GetPath(r, field)
			s, ok := v.(string)
			if !ok {
				return r, nil
			}
			n := float64(utf8.RuneCountInString(s))
			if condition == config.ConditionMinLength && n < bound {
				return nil, util.NewRuleValidationError(field, condition,
					fmt.Sprintf("length %d is below minimum %v", int(n), bound))
			}
			if condition == config.ConditionMaxLength && n > bound {
				return nil, util.NewRuleValidationError(field, condition,
					fmt.Sprintf("length %d exceeds maximum %v", int(n), bound))
			}
			return r, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown condition %q", rule.Condition)
	}
}

// compileTransformation builds a string transformation written back to
// the same field.
func compileTransformation(rule config.Rule) (ruleFunc, error) {
	var op func(string) string

	switch rule.Operation {
	case config.OperationUppercase:
		// Casers hold state and are not safe for concurrent use.
		op = func(s string) string { return cases.Upper(language.Und).String(s) }
	case config.OperationLowercase:
		op = func(s string) string { return cases.Lower(language.Und).String(s) }
	case config.OperationTrim:
		op = strings.TrimSpace
	case config.OperationReplace:
		spec, err := config.ParseReplace(rule.Value)
		if err != nil {
			return nil, err
		}
		op = func(s string) string { return strings.Replace(s, spec.Pattern, spec.Replacement, 1) }
	default:
		return nil, fmt.Errorf("unknown operation %q", rule.Operation)
	}

	field := rule.Field
	return func(r Record, _ *execEnv) (Record, error) {
		v, _ := GetPath(r, field)
		if v == nil {
			v = ""
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T", errNotString, v)
		}
		return writeField(r, field, op(s))
	}, nil
}

// compileEnrichment builds an enrichment writing a derived value.
func compileEnrichment(rule config.Rule) (ruleFunc, error) {
	var produce func(r Record, env *execEnv) interface{}

	switch rule.Source {
	case config.SourceTimestamp:
		format, err := config.ParseTimestampFormat(rule.Mapping)
		if err != nil {
			return nil, err
		}
		produce = func(_ Record, env *execEnv) interface{} {
			return FormatTimestamp(env.now.In(env.loc), format)
		}
	case config.SourceUUID:
		produce = func(_ Record, env *execEnv) interface{} {
			return env.newUUID()
		}
	case config.SourceCalculation:
		spec, err := config.ParseCalculation(rule.Mapping)
		if err != nil {
			return nil, err
		}
		produce = func(r Record, _ *execEnv) interface{} {
			return Calculate(spec.Operation, collectNumbers(r, spec.Fields))
		}
	default:
		return nil, fmt.Errorf("unknown source %q", rule.Source)
	}

	field := rule.Field
	return func(r Record, env *execEnv) (Record, error) {
		return writeField(r, field, produce(r, env))
	}, nil
}

// writeField returns a copy of r with value at path.
func writeField(r Record, path string, value interface{}) (Record, error) {
	out := Record(cloneMap(r))
	if err := SetPath(out, path, value); err != nil {
		return nil, err
	}
	return out, nil
}

// collectNumbers reads fields from r. Missing and non-numeric values count
// as 0; numeric strings are parsed.
func collectNumbers(r Record, fields []string) []float64 {
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, _ := GetPath(r, f)
		if n, ok := util.ParseNumber(v); ok {
			values[i] = n
		}
	}
	return values
}

// Calculate reduces values by sum, average, max or min. An empty input
// yields 0 for every operation.
func Calculate(operation string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	switch operation {
	case config.CalcSum:
		return sum(values)
	case config.CalcAverage:
		return sum(values) / float64(len(values))
	case config.CalcMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case config.CalcMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	default:
		return 0
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
