package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

func testEnv() *execEnv {
	return &execEnv{
		now:     time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC),
		loc:     time.UTC,
		newUUID: func() string { return "00000000-0000-4000-8000-000000000000" },
	}
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		values    []float64
		expected  float64
	}{
		{name: "sum", operation: config.CalcSum, values: []float64{2, 3}, expected: 5},
		{name: "average", operation: config.CalcAverage, values: []float64{1, 2, 6}, expected: 3},
		{name: "max", operation: config.CalcMax, values: []float64{-1, 7, 3}, expected: 7},
		{name: "min", operation: config.CalcMin, values: []float64{4, -2, 9}, expected: -2},
		{name: "single value", operation: config.CalcMax, values: []float64{-5}, expected: -5},
		{name: "empty sum", operation: config.CalcSum, expected: 0},
		{name: "empty average", operation: config.CalcAverage, expected: 0},
		{name: "empty max", operation: config.CalcMax, expected: 0},
		{name: "empty min", operation: config.CalcMin, expected: 0},
		{name: "unknown operation", operation: "median", values: []float64{1}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Calculate(tt.operation, tt.values))
		})
	}
}

func TestCollectNumbers(t *testing.T) {
	t.Parallel()

	r := Record{
		"a":    2,
		"b":    "3.5",
		"c":    "abc",
		"d":    true,
		"nest": map[string]interface{}{"e": 4.0},
	}

	got := collectNumbers(r, []string{"a", "b", "c", "d", "nest.e", "missing"})

	assert.Equal(t, []float64{2, 3.5, 0, 0, 4, 0}, got)
}

func TestCompileRule_Unknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule config.Rule
	}{
		{name: "type", rule: config.Rule{Type: "audit", Field: "a"}},
		{name: "condition", rule: config.Rule{Type: RuleTypeValidation, Field: "a", Condition: "email"}},
		{name: "operation", rule: config.Rule{Type: RuleTypeTransformation, Field: "a", Operation: "reverse"}},
		{name: "source", rule: config.Rule{Type: RuleTypeEnrichment, Field: "a", Source: "geoip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := compileRule(tt.rule)
			assert.Error(t, err)
		})
	}
}

func TestValidationRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    config.Rule
		record  Record
		wantErr bool
	}{
		{name: "required present", rule: config.Rule{Field: "email", Condition: "required"}, record: Record{"email": "a@b"}},
		{name: "required missing", rule: config.Rule{Field: "email", Condition: "required"}, record: Record{}, wantErr: true},
		{name: "required empty string", rule: config.Rule{Field: "email", Condition: "required"}, record: Record{"email": ""}, wantErr: true},
		{name: "required zero", rule: config.Rule{Field: "n", Condition: "required"}, record: Record{"n": 0}, wantErr: true},
		{name: "required false", rule: config.Rule{Field: "ok", Condition: "required"}, record: Record{"ok": false}, wantErr: true},
		{name: "required nested", rule: config.Rule{Field: "user.id", Condition: "required"}, record: Record{"user": map[string]interface{}{"id": 7}}},
		{name: "min length boundary", rule: config.Rule{Field: "s", Condition: "min_length", Value: 3}, record: Record{"s": "abc"}},
		{name: "min length below", rule: config.Rule{Field: "s", Condition: "min_length", Value: 3}, record: Record{"s": "ab"}, wantErr: true},
		{name: "max length boundary", rule: config.Rule{Field: "s", Condition: "max_length", Value: 3}, record: Record{"s": "abc"}},
		{name: "max length above", rule: config.Rule{Field: "s", Condition: "max_length", Value: 3}, record: Record{"s": "abcd"}, wantErr: true},
		{name: "length counts runes", rule: config.Rule{Field: "s", Condition: "max_length", Value: 2}, record: Record{"s": "äö"}},
		{name: "length string bound", rule: config.Rule{Field: "s", Condition: "min_length", Value: "2"}, record: Record{"s": "a"}, wantErr: true},
		{name: "length ignores non string", rule: config.Rule{Field: "s", Condition: "min_length", Value: 3}, record: Record{"s": 1}},
		{name: "length ignores missing", rule: config.Rule{Field: "s", Condition: "min_length", Value: 3}, record: Record{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.rule.Type = RuleTypeValidation
			exec, err := compileRule(tt.rule)
			require.NoError(t, err)

			out, err := exec(tt.record, testEnv())
			if tt.wantErr {
				var verr *util.RuleValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.rule.Field, verr.Field)
				assert.Equal(t, tt.rule.Condition, verr.Condition)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.record, out)
		})
	}
}

func TestTransformationRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rule     config.Rule
		record   Record
		expected interface{}
		wantErr  bool
	}{
		{name: "uppercase", rule: config.Rule{Field: "name", Operation: "uppercase"}, record: Record{"name": "alice"}, expected: "ALICE"},
		{name: "uppercase unicode", rule: config.Rule{Field: "name", Operation: "uppercase"}, record: Record{"name": "straße"}, expected: "STRASSE"},
		{name: "lowercase", rule: config.Rule{Field: "name", Operation: "lowercase"}, record: Record{"name": "BoB"}, expected: "bob"},
		{name: "trim", rule: config.Rule{Field: "name", Operation: "trim"}, record: Record{"name": "  x y \t"}, expected: "x y"},
		{
			name:     "replace first occurrence",
			rule:     config.Rule{Field: "code", Operation: "replace", Value: map[string]interface{}{"pattern": "-", "replacement": "_"}},
			record:   Record{"code": "a-b-c"},
			expected: "a_b-c",
		},
		{
			name:     "replace without replacement",
			rule:     config.Rule{Field: "code", Operation: "replace", Value: map[string]interface{}{"pattern": "x"}},
			record:   Record{"code": "axb"},
			expected: "ab",
		},
		{name: "missing field becomes empty", rule: config.Rule{Field: "name", Operation: "uppercase"}, record: Record{}, expected: ""},
		{name: "nested field", rule: config.Rule{Field: "user.name", Operation: "trim"}, record: Record{"user": map[string]interface{}{"name": " z "}}, expected: "z"},
		{name: "non string", rule: config.Rule{Field: "n", Operation: "uppercase"}, record: Record{"n": 5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.rule.Type = RuleTypeTransformation
			exec, err := compileRule(tt.rule)
			require.NoError(t, err)

			before := Record(cloneMap(tt.record))
			out, err := exec(tt.record, testEnv())
			assert.Equal(t, before, tt.record, "input must not be modified")

			if tt.wantErr {
				assert.ErrorIs(t, err, errNotString)
				return
			}
			require.NoError(t, err)

			got, found := GetPath(out, tt.rule.Field)
			require.True(t, found)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTransformationRules_Idempotent(t *testing.T) {
	t.Parallel()

	for _, op := range []string{config.OperationUppercase, config.OperationLowercase, config.OperationTrim} {
		exec, err := compileRule(config.Rule{Type: RuleTypeTransformation, Field: "s", Operation: op})
		require.NoError(t, err)

		once, err := exec(Record{"s": "  MiXeD Case  "}, testEnv())
		require.NoError(t, err)
		twice, err := exec(once, testEnv())
		require.NoError(t, err)

		assert.Equal(t, once, twice, op)
	}
}

func TestEnrichmentRules(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	tests := []struct {
		name     string
		rule     config.Rule
		record   Record
		loc      *time.Location
		expected interface{}
	}{
		{name: "timestamp default format", rule: config.Rule{Field: "at", Source: "timestamp"}, record: Record{}, expected: "2024-03-05 07:08:09"},
		{name: "timestamp custom format", rule: config.Rule{Field: "at", Source: "timestamp", Mapping: "DD.MM.YYYY"}, record: Record{}, expected: "05.03.2024"},
		{name: "timestamp in location", rule: config.Rule{Field: "at", Source: "timestamp", Mapping: "HH:mm"}, record: Record{}, loc: tokyo, expected: "16:08"},
		{name: "uuid", rule: config.Rule{Field: "ref", Source: "uuid"}, record: Record{}, expected: "00000000-0000-4000-8000-000000000000"},
		{
			name: "sum",
			rule: config.Rule{Field: "total", Source: "calculation", Mapping: map[string]interface{}{
				"operation": "sum", "fields": []interface{}{"a", "b"},
			}},
			record:   Record{"a": 2, "b": 3},
			expected: float64(5),
		},
		{
			name: "average with missing field",
			rule: config.Rule{Field: "avg", Source: "calculation", Mapping: map[string]interface{}{
				"operation": "average", "fields": []interface{}{"a", "b"},
			}},
			record:   Record{"a": 4},
			expected: float64(2),
		},
		{
			name: "max over nested",
			rule: config.Rule{Field: "stats.max", Source: "calculation", Mapping: map[string]interface{}{
				"operation": "max", "fields": []string{"x.v", "y"},
			}},
			record:   Record{"x": map[string]interface{}{"v": 10}, "y": "12"},
			expected: float64(12),
		},
		{
			name: "empty field list",
			rule: config.Rule{Field: "m", Source: "calculation", Mapping: map[string]interface{}{
				"operation": "min",
			}},
			record:   Record{},
			expected: float64(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.rule.Type = RuleTypeEnrichment
			exec, err := compileRule(tt.rule)
			require.NoError(t, err)

			env := testEnv()
			if tt.loc != nil {
				env.loc = tt.loc
			}

			out, err := exec(tt.record, env)
			require.NoError(t, err)

			got, found := GetPath(out, tt.rule.Field)
			require.True(t, found)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCompileRuleSet(t *testing.T) {
	t.Parallel()

	env, err := newGuardEnv()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		rs, err := compileRuleSet(&config.TransformerConfig{
			ErrorHandlingEnabled: true,
			StrictRules:          true,
			Timezone:             "Europe/Berlin",
			BatchConcurrency:     4,
			BusinessRules: []config.Rule{
				{Type: RuleTypeValidation, Field: "id", Condition: "required"},
				{Type: RuleTypeTransformation, Field: "name", Operation: "trim", When: "has(record.name)"},
			},
		}, env)
		require.NoError(t, err)

		assert.Len(t, rs.rules, 2)
		assert.True(t, rs.errorHandlingEnabled)
		assert.True(t, rs.strict)
		assert.Equal(t, "Europe/Berlin", rs.loc.String())
		assert.Equal(t, 4, rs.batchConcurrency)
		assert.Nil(t, rs.rules[0].guard)
		assert.NotNil(t, rs.rules[1].guard)
		assert.Equal(t, "#1", rs.rules[1].displayName())
	})

	t.Run("default location", func(t *testing.T) {
		t.Parallel()

		rs, err := compileRuleSet(&config.TransformerConfig{}, env)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, rs.loc)
	})

	tests := []struct {
		name      string
		cfg       config.TransformerConfig
		wantField string
	}{
		{
			name:      "invalid rule",
			cfg:       config.TransformerConfig{BusinessRules: []config.Rule{{Type: "bogus", Field: "a"}}},
			wantField: "transformer",
		},
		{
			name:      "unknown timezone",
			cfg:       config.TransformerConfig{Timezone: "Mars/Olympus"},
			wantField: "transformer",
		},
		{
			name: "bad guard",
			cfg: config.TransformerConfig{BusinessRules: []config.Rule{
				{Type: RuleTypeValidation, Field: "a", Condition: "required", When: "record.("},
			}},
			wantField: "transformer.businessRules[0].when",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := compileRuleSet(&tt.cfg, env)
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrConfigInvalid)

			var cerr *util.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}
