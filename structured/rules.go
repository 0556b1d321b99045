package structured

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Type is the tag of a schema field. The set is deliberately small: the
// structuring contract only promises these shapes.
type Type string

const (
	// TypeString is a free-text field.
	TypeString Type = "string"
	// TypeBoolean is a true/false flag.
	TypeBoolean Type = "boolean"
	// TypeInteger is a whole number.
	TypeInteger Type = "integer"
	// TypeList is an ordered collection.
	TypeList Type = "list"
	// TypeMap is a nested key/value object.
	TypeMap Type = "map"
)

// Field is one named, typed slot in a target schema.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered field list describing the argument map a tool expects.
type Schema []Field

// genericKey receives the raw text when no structured value can be parsed.
const genericKey = "content"

// toolAliases maps tool names onto per-field alias lists consulted before the
// generic table. Models frequently rename delegation fields, so the worker
// delegation tools carry the densest alias sets.
var toolAliases = map[string]map[string][]string{
	"delegate_research": {
		"task_description": {"task", "description", "content", "query"},
	},
	"delegate_analysis": {
		"task_description": {"task", "description", "content"},
	},
	"delegate_writing": {
		"task_description": {"task", "description", "content", "draft"},
	},
	"respond_to_user": {
		"message": {"response", "content", "text", "answer"},
	},
	"web_search": {
		"query": {"q", "search", "text", "content"},
	},
}

// genericAliases is the alias table shared across all tools.
var genericAliases = map[string][]string{
	"task_description": {"task", "description", "content"},
	"query":            {"q", "search", "text"},
	"message":          {"content", "text", "response"},
	"content":          {"text", "message", "body"},
	"file_path":        {"path", "filename", "file"},
}

// ApplySchema is the deterministic rule-based structuring tier: a pure
// function of (text, schema, alias tables). Every schema field is present in
// the output with a value of its declared type, regardless of how malformed
// the input is.
func ApplySchema(text string, schema Schema, toolName string) map[string]any {
	return ConformMap(parseCandidate(text), schema, toolName)
}

// ConformMap resolves each schema field against an already-parsed value map
// using exact match, tool-specific aliases, generic aliases and finally a
// type-appropriate default.
func ConformMap(parsed map[string]any, schema Schema, toolName string) map[string]any {
	out := make(map[string]any, len(schema))
	for _, f := range schema {
		if v, ok := parsed[f.Name]; ok {
			out[f.Name] = coerce(v, f.Type)
			continue
		}
		if v, ok := lookupAlias(parsed, f.Name, toolName); ok {
			out[f.Name] = coerce(v, f.Type)
			continue
		}
		out[f.Name] = defaultFor(f.Type)
	}
	return out
}

func lookupAlias(parsed map[string]any, field, toolName string) (any, bool) {
	if perTool, ok := toolAliases[toolName]; ok {
		for _, alias := range perTool[field] {
			if v, ok := parsed[alias]; ok {
				return v, true
			}
		}
	}
	for _, alias := range genericAliases[field] {
		if v, ok := parsed[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

// parseCandidate extracts the most structured value available from free text:
// a fenced tool-marker block first, then the whole text as JSON, then the
// first balanced object substring, and finally the raw text wrapped under the
// generic key.
func parseCandidate(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[string]any{genericKey: ""}
	}

	if block, ok := fencedBlock(trimmed); ok {
		if m, ok := decodeObject(block); ok {
			return m
		}
	}
	if m, ok := decodeObject(trimmed); ok {
		return m
	}
	if obj, ok := balancedObject(trimmed); ok {
		if m, ok := decodeObject(obj); ok {
			return m
		}
	}
	return map[string]any{genericKey: trimmed}
}

// fencedBlock returns the contents of the first ``` fenced block, stripping
// an optional language tag.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	block := rest[:end]
	if nl := strings.IndexByte(block, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(block[:nl])
		if firstLine == "json" || firstLine == "" {
			block = block[nl+1:]
		}
	}
	return strings.TrimSpace(block), true
}

// balancedObject returns the first {...} substring with balanced braces,
// ignoring braces inside string literals.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeObject(text string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}
	if m == nil {
		return nil, false
	}
	return m, true
}

// coerce converts v to the declared type. Coercion is total: values that
// cannot be converted become the type default rather than an error.
func coerce(v any, t Type) any {
	switch t {
	case TypeString:
		return coerceString(v)
	case TypeBoolean:
		return coerceBool(v)
	case TypeInteger:
		return coerceInt(v)
	case TypeList:
		if list, ok := v.([]any); ok {
			return list
		}
		return []any{}
	case TypeMap:
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	default:
		return coerceString(v)
	}
}

func coerceString(v any) string {
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
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return ""
	}
}

// coerceBool applies truthiness: empty, zero and recognized negative words
// are false, everything else is true.
func coerceBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "false", "no", "0", "off":
			return false
		}
		return true
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return false
	}
}

func coerceInt(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(val)
		if n, err := strconv.Atoi(trimmed); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int(f)
		}
		return 0
	default:
		return 0
	}
}

func defaultFor(t Type) any {
	switch t {
	case TypeBoolean:
		return false
	case TypeInteger:
		return 0
	case TypeList:
		return []any{}
	case TypeMap:
		return map[string]any{}
	default:
		return ""
	}
}

// SchemaFromParameters derives a structuring schema from a JSON-Schema-like
// tool parameter map. Properties are ordered by name so the result is
// deterministic; number types collapse onto integer per the structuring
// contract.
func SchemaFromParameters(params map[string]any) Schema {
	props, ok := params["properties"].(map[string]any)
	if !ok {
		return Schema{}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make(Schema, 0, len(names))
	for _, name := range names {
		tag := TypeString
		if prop, ok := props[name].(map[string]any); ok {
			switch prop["type"] {
			case "boolean":
				tag = TypeBoolean
			case "integer", "number":
				tag = TypeInteger
			case "array":
				tag = TypeList
			case "object":
				tag = TypeMap
			}
		}
		schema = append(schema, Field{Name: name, Type: tag})
	}
	return schema
}
