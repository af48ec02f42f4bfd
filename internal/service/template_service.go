package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"smsdispatch/internal/models"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	fieldRe       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

const attributesPrefix = "attributes."

// TemplateService handles message template rendering
type TemplateService struct{}

// NewTemplateService creates a new template service
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// Render substitutes {{name}}, {{attributes.<field>}} and {{<field>}}
// placeholders in one pass. Known placeholders with no value render as
// an empty string; unknown or malformed ones are kept as written.
func (s *TemplateService) Render(template string, r models.Recipient) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		field := placeholderRe.FindStringSubmatch(match)[1]
		if !fieldRe.MatchString(field) {
			return match
		}
		value, ok := lookup(field, r)
		if !ok {
			return match
		}
		return value
	})
}

func lookup(field string, r models.Recipient) (string, bool) {
	if strings.HasPrefix(field, attributesPrefix) {
		v, ok := r.Attributes[strings.TrimPrefix(field, attributesPrefix)]
		if !ok {
			return "", true
		}
		return formatValue(v), true
	}
	if strings.Contains(field, ".") {
		return "", false
	}

	switch field {
	case "name":
		if r.Name == nil {
			return "", true
		}
		return *r.Name, true
	case "phone", "phone_e164":
		return r.PhoneE164, true
	case "country":
		return r.Country, true
	}

	if v, ok := r.Attributes[field]; ok {
		return formatValue(v), true
	}
	return "", false
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// ValidateTemplate checks that a template has content
func (s *TemplateService) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("template cannot be empty")
	}
	return nil
}

// GetPlaceholders extracts the field names referenced by a template
func (s *TemplateService) GetPlaceholders(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	fields := make([]string, 0, len(matches))
	for _, m := range matches {
		if fieldRe.MatchString(m[1]) {
			fields = append(fields, m[1])
		}
	}
	return fields
}
