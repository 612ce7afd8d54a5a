package config

import (
	"fmt"
	"strings"
)

// CustomAttribute represents a custom span attribute with an expression
type CustomAttribute struct {
	Name       string
	Expression string
}

// ParseAttribute parses one "name=expression" pair. Only the first '='
// separates, so expressions may contain '=='.
func ParseAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected name=expression", s)
	}

	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)

	if name == "" {
		return CustomAttribute{}, fmt.Errorf("attribute name cannot be empty in %q", s)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("attribute expression cannot be empty in %q", s)
	}

	return CustomAttribute{Name: name, Expression: expression}, nil
}

// ParseAttributeString parses a semicolon-separated list of attributes
// Format: "name1=expr1;name2=expr2"
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if s == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		attr, err := ParseAttribute(part)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}
