package hatsetup

import (
	"bytes"
	"log"
	"strings"
	"text/template"
)

// StringMap holds the variables available to message strings and file
// templates, like the product name or the daemon's discovery port.
type StringMap map[string]string

// templateFuncs are the helpers usable inside {{...}} expressions, for
// language strings that need to reshape a variable.
var templateFuncs = template.FuncMap{
	"upper":   strings.ToUpper,
	"lower":   strings.ToLower,
	"trim":    strings.TrimSpace,
	"replace": func(from, to, input string) string { return strings.ReplaceAll(input, from, to) },
}

// ExpandVariables resolves {{.var}} references in str from the given map. A
// string that fails to parse or execute comes back unchanged, so a broken
// translation cannot take an operation down with it.
func ExpandVariables(str string, variables StringMap) string {
	templ, err := template.New("").Funcs(templateFuncs).Parse(str)
	if err != nil {
		log.Printf("invalid string template %q: %s", str, err)
		return str
	}
	var buf bytes.Buffer
	if err := templ.Execute(&buf, variables); err != nil {
		log.Printf("expanding template %q: %s", str, err)
		return str
	}
	return buf.String()
}

// MergeVariables combines variable maps into one, later maps winning on
// duplicate keys.
func MergeVariables(varMaps ...StringMap) StringMap {
	merged := make(StringMap)
	for _, vars := range varMaps {
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged
}
