package routes

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/rotisserie/eris"
)

// Output formats understood by Table.Render
const (
	FormatVar  = "var"
	FormatESM  = "esm"
	FormatJSON = "json"
)

// DefaultVar is the symbol the routing table is assigned to unless configured otherwise.
const DefaultVar = "foundationRoutes"

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true, "function": true,
	"if": true, "import": true, "in": true, "instanceof": true, "let": true, "new": true,
	"null": true, "return": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true, "await": true, "static": true,
}

// ValidateVar checks that name can be used as a JavaScript variable. An empty name selects
// DefaultVar and is always valid.
func ValidateVar(name string) error {
	if name == "" {
		return nil
	}

	if !identifierRe.MatchString(name) || reservedWords[name] {
		return eris.Errorf("%q is not a valid JavaScript identifier", name)
	}
	return nil
}

// Table is an ordered URL -> template mapping.
type Table struct {
	routes []Route
	index  map[string]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Add appends a route. Adding a URL that is already present fails with ErrDuplicateRoute.
func (t *Table) Add(r Route) error {
	if prev, ok := t.index[r.URL]; ok {
		return eris.Wrapf(ErrDuplicateRoute, "%s is provided by both %s and %s", r.URL, t.routes[prev].Template, r.Template)
	}

	t.index[r.URL] = len(t.routes)
	t.routes = append(t.routes, r)
	return nil
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Routes returns the routes in insertion order.
func (t *Table) Routes() []Route {
	result := make([]Route, len(t.routes))
	copy(result, t.routes)
	return result
}

// Lookup returns the template for the given URL.
func (t *Table) Lookup(url string) (string, bool) {
	idx, ok := t.index[url]
	if !ok {
		return "", false
	}
	return t.routes[idx].Template, true
}

// Render serializes the table. The output only depends on the table's content and order.
func (t *Table) Render(format, name string) ([]byte, error) {
	err := ValidateVar(name)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = DefaultVar
	}

	var buf bytes.Buffer
	switch format {
	case "", FormatVar:
		buf.WriteString("var " + name + " = ")
	case FormatESM:
		buf.WriteString("export const " + name + " = ")
	case FormatJSON:
	default:
		return nil, eris.Errorf("unknown routing table format %s", format)
	}

	err = t.writeObject(&buf)
	if err != nil {
		return nil, err
	}

	if format != FormatJSON {
		buf.WriteString(";")
	}
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func (t *Table) writeObject(buf *bytes.Buffer) error {
	if len(t.routes) == 0 {
		buf.WriteString("{}")
		return nil
	}

	buf.WriteString("{\n")
	for idx, r := range t.routes {
		key, err := quote(r.URL)
		if err != nil {
			return err
		}

		value, err := quote(r.Template)
		if err != nil {
			return err
		}

		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if idx < len(t.routes)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}")

	return nil
}

func quote(value string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	err := enc.Encode(value)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode %s", value)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
