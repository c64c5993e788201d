// rules.go: Validation rules for configuration items
//
// A rule is a kind plus options, e.g. {Kind: "string", Options: {"max": 64}}.
// Kinds resolve to validators through a process-wide registry; the built-in
// set covers the common scalar checks and custom kinds can be added with
// RegisterValidator.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"math"
	"net/mail"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agilira/go-errors"
)

// Built-in rule kinds
const (
	RuleSafe     = "safe"
	RuleRequired = "required"
	RuleString   = "string"
	RuleInteger  = "integer"
	RuleNumber   = "number"
	RuleBoolean  = "boolean"
	RuleIn       = "in"
	RuleMatch    = "match"
	RuleEmail    = "email"
)

// Rule is a single validation rule applied to an item value.
type Rule struct {
	Kind    string
	Options map[string]interface{}
}

// ValidatorFunc checks value against the rule options. It returns nil when the
// value passes, otherwise an error whose message reads as a predicate of the
// item label ("cannot be blank", "must be an integer").
//
// Empty values reach only validators registered with skipEmpty=false.
type ValidatorFunc func(value interface{}, options map[string]interface{}) error

type validator struct {
	fn        ValidatorFunc
	skipEmpty bool
}

var (
	validators     = map[string]validator{}
	validatorMutex sync.RWMutex
)

func init() {
	builtins := map[string]validator{
		RuleSafe:     {fn: func(interface{}, map[string]interface{}) error { return nil }},
		RuleRequired: {fn: validateRequired},
		RuleString:   {fn: validateString, skipEmpty: true},
		RuleInteger:  {fn: validateInteger, skipEmpty: true},
		RuleNumber:   {fn: validateNumber, skipEmpty: true},
		RuleBoolean:  {fn: validateBoolean, skipEmpty: true},
		RuleIn:       {fn: validateIn, skipEmpty: true},
		RuleMatch:    {fn: validateMatch, skipEmpty: true},
		RuleEmail:    {fn: validateEmail, skipEmpty: true},
	}
	for kind, v := range builtins {
		validators[kind] = v
	}
}

// RegisterValidator adds a custom rule kind. Empty values are skipped before
// fn is called. Registering an existing kind is rejected.
//
// Example:
//
//	dynconf.RegisterValidator("port", func(v interface{}, _ map[string]interface{}) error {
//	    n, ok := v.(int)
//	    if !ok || n < 1 || n > 65535 {
//	        return fmt.Errorf("must be a valid port")
//	    }
//	    return nil
//	})
func RegisterValidator(kind string, fn ValidatorFunc) error {
	if kind == "" {
		return errors.New(ErrCodeInvalidConfig, "validator kind cannot be empty")
	}
	if fn == nil {
		return errors.New(ErrCodeInvalidConfig, "validator function cannot be nil")
	}

	validatorMutex.Lock()
	defer validatorMutex.Unlock()

	if _, exists := validators[kind]; exists {
		return errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("validator for rule '%s' already registered", kind))
	}
	validators[kind] = validator{fn: fn, skipEmpty: true}
	return nil
}

func lookupValidator(kind string) (validator, bool) {
	validatorMutex.RLock()
	defer validatorMutex.RUnlock()
	v, ok := validators[kind]
	return v, ok
}

// Check applies the rule to value.
func (r Rule) Check(value interface{}) error {
	v, ok := lookupValidator(r.Kind)
	if !ok {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("unknown rule '%s'", r.Kind))
	}
	if v.skipEmpty && isEmpty(value) {
		return nil
	}
	return v.fn(value, r.Options)
}

// ParseRules normalizes declarative rules. Each entry may be a kind string,
// a Rule, a [kind, {options}] pair or a mapping with a "kind" key:
//
//	rules:
//	  - required
//	  - [string, {max: 64}]
//	  - {kind: in, range: [dev, prod]}
func ParseRules(raw interface{}) ([]Rule, error) {
	var entries []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []Rule:
		entries = make([]interface{}, len(v))
		for i := range v {
			entries[i] = v[i]
		}
	case []string:
		entries = make([]interface{}, len(v))
		for i := range v {
			entries[i] = v[i]
		}
	case []interface{}:
		entries = v
	default:
		return nil, invalidConfigError("rules must be a list, got %T", raw)
	}

	rules := make([]Rule, 0, len(entries))
	for i, entry := range entries {
		rule, err := parseRule(entry)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid rule #%d", i))
		}
		if _, ok := lookupValidator(rule.Kind); !ok {
			return nil, invalidConfigError("unknown rule '%s'", rule.Kind)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(entry interface{}) (Rule, error) {
	switch v := entry.(type) {
	case Rule:
		return v, nil
	case string:
		return Rule{Kind: v}, nil
	case []interface{}:
		if len(v) == 0 || len(v) > 2 {
			return Rule{}, invalidConfigError("rule must be [kind] or [kind, options]")
		}
		kind, ok := v[0].(string)
		if !ok {
			return Rule{}, invalidConfigError("rule kind must be a string, got %T", v[0])
		}
		rule := Rule{Kind: kind}
		if len(v) == 2 {
			opts, ok := v[1].(map[string]interface{})
			if !ok {
				return Rule{}, invalidConfigError("rule options must be a mapping, got %T", v[1])
			}
			rule.Options = opts
		}
		return rule, nil
	case map[string]interface{}:
		kind, ok := v["kind"].(string)
		if !ok {
			return Rule{}, invalidConfigError("rule mapping requires a string 'kind'")
		}
		opts := make(map[string]interface{}, len(v)-1)
		for key, val := range v {
			if key != "kind" {
				opts[key] = val
			}
		}
		return Rule{Kind: kind, Options: opts}, nil
	default:
		return Rule{}, invalidConfigError("unsupported rule declaration %T", entry)
	}
}

// isEmpty reports nil, "", and empty slices or maps.
func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func validateRequired(value interface{}, _ map[string]interface{}) error {
	if isEmpty(value) {
		return fmt.Errorf("cannot be blank")
	}
	return nil
}

func validateString(value interface{}, opts map[string]interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	length := utf8.RuneCountInString(s)
	if min, ok := numberOption(opts, "min"); ok && float64(length) < min {
		return fmt.Errorf("should contain at least %v characters", min)
	}
	if max, ok := numberOption(opts, "max"); ok && float64(length) > max {
		return fmt.Errorf("should contain at most %v characters", max)
	}
	return nil
}

func validateInteger(value interface{}, opts map[string]interface{}) error {
	n, ok := toNumber(value)
	if !ok || n != math.Trunc(n) {
		return fmt.Errorf("must be an integer")
	}
	return checkBounds(n, opts)
}

func validateNumber(value interface{}, opts map[string]interface{}) error {
	n, ok := toNumber(value)
	if !ok {
		return fmt.Errorf("must be a number")
	}
	return checkBounds(n, opts)
}

func checkBounds(n float64, opts map[string]interface{}) error {
	if min, ok := numberOption(opts, "min"); ok && n < min {
		return fmt.Errorf("must be no less than %v", min)
	}
	if max, ok := numberOption(opts, "max"); ok && n > max {
		return fmt.Errorf("must be no greater than %v", max)
	}
	return nil
}

func validateBoolean(value interface{}, _ map[string]interface{}) error {
	switch v := value.(type) {
	case bool:
		return nil
	case string:
		switch strings.ToLower(v) {
		case "0", "1", "true", "false":
			return nil
		}
	default:
		if n, ok := toNumber(v); ok && (n == 0 || n == 1) {
			return nil
		}
	}
	return fmt.Errorf("must be either true or false")
}

func validateIn(value interface{}, opts map[string]interface{}) error {
	allowed, ok := opts["range"]
	if !ok {
		return errors.New(ErrCodeValidation, "the 'range' option is required for rule 'in'")
	}
	rv := reflect.ValueOf(allowed)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return errors.New(ErrCodeValidation, "the 'range' option must be a list")
	}

	// Loose comparison, so 8080 matches "8080" from a form post.
	needle := fmt.Sprint(value)
	for i := 0; i < rv.Len(); i++ {
		if fmt.Sprint(rv.Index(i).Interface()) == needle {
			return nil
		}
	}
	return fmt.Errorf("is invalid")
}

var (
	patternCache = map[string]*regexp.Regexp{}
	patternMutex sync.Mutex
)

func compilePattern(pattern string) (*regexp.Regexp, error) {
	patternMutex.Lock()
	defer patternMutex.Unlock()

	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}

func validateMatch(value interface{}, opts map[string]interface{}) error {
	pattern, ok := opts["pattern"].(string)
	if !ok || pattern == "" {
		return errors.New(ErrCodeValidation, "the 'pattern' option is required for rule 'match'")
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return errors.Wrap(err, ErrCodeValidation, fmt.Sprintf("invalid pattern '%s'", pattern))
	}

	s, isString := value.(string)
	matched := isString && re.MatchString(s)
	if not, _ := opts["not"].(bool); not {
		matched = isString && !matched
	}
	if !matched {
		return fmt.Errorf("is invalid")
	}
	return nil
}

func validateEmail(value interface{}, _ map[string]interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("is not a valid email address")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("is not a valid email address")
	}
	return nil
}

func numberOption(opts map[string]interface{}, key string) (float64, bool) {
	raw, ok := opts[key]
	if !ok {
		return 0, false
	}
	return toNumber(raw)
}

// toNumber converts numeric kinds and numeric strings to float64.
func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case bool:
		return 0, false
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
