package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// ParseTemplate expands a key template against a message. A template is a
// format string optionally followed by comma separated field names, e.g.
// "order-%s::%d,order_number,quantity". Without field names the format
// string is returned verbatim.
func ParseTemplate(template string, parsed message.ParsedMessage, schema *message.Schema) (string, error) {
	if template == "" {
		return "", sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "Template '%s' is invalid", template)
	}

	parts := strings.Split(template, ",")
	pattern := parts[0]
	if len(parts) == 1 {
		return pattern, nil
	}

	args := make([]interface{}, 0, len(parts)-1)
	for _, name := range parts[1:] {
		name = strings.TrimSpace(name)
		v, err := parsed.FieldByName(name, schema)
		if err != nil {
			return "", err
		}
		if v == nil {
			return "", sinkerrors.Newf(sinkerrors.ErrorTypeDeserialization, "template field %s has no value", name).
				WithDetail("template", template)
		}
		args = append(args, templateArg(v))
	}

	verbs := directives(pattern)
	if len(args) < len(verbs) {
		return "", sinkerrors.Newf(sinkerrors.ErrorTypeDeserialization,
			"template %q needs %d values, got %d", template, len(verbs), len(args))
	}
	args = args[:len(verbs)]
	for i, verb := range verbs {
		arg, ok := fitDirective(verb, args[i])
		if !ok {
			return "", sinkerrors.Newf(sinkerrors.ErrorTypeDeserialization,
				"template %q cannot format %T with %%%c", template, args[i], verb).
				WithDetail("field", strings.TrimSpace(parts[i+1]))
		}
		args[i] = arg
	}
	return fmt.Sprintf(pattern, args...), nil
}

// directives returns the verb of every formatting directive in pattern.
// Escaped percent signs consume no value.
func directives(pattern string) []rune {
	var verbs []rune
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' {
			continue
		}
		j := i + 1
		for j < len(runes) && strings.ContainsRune("+-# 0123456789.", runes[j]) {
			j++
		}
		if j == len(runes) {
			break
		}
		if runes[j] != '%' {
			verbs = append(verbs, runes[j])
		}
		i = j
	}
	return verbs
}

// fitDirective reports whether v can be rendered by verb and returns the
// value to hand to fmt.
func fitDirective(verb rune, v interface{}) (interface{}, bool) {
	switch verb {
	case 's', 'v':
		return fmt.Sprint(v), true
	case 'd', 'x', 'X', 'o':
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return v, true
		}
	case 'f', 'e', 'E', 'g', 'G':
		switch v.(type) {
		case float32, float64:
			return v, true
		}
	case 't':
		if _, ok := v.(bool); ok {
			return v, true
		}
	}
	return nil, false
}

func templateArg(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return v
	}
}

// valueString renders a field value as it is stored in Redis.
func valueString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case map[string]interface{}, []interface{}, message.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return "", sinkerrors.Wrap(err, sinkerrors.ErrorTypeDeserialization, "failed to encode value")
		}
		return string(b), nil
	default:
		return fmt.Sprint(t), nil
	}
}
