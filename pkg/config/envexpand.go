package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables in YAML content using
// {{.VAR_NAME}} template syntax. The template form is deliberate: plain $
// expansion would mangle the regex patterns and OCID fragments that appear
// in this configuration.
//
// Missing variables expand to the empty string; required-field validation
// catches anything that must not be empty. Content without template syntax
// passes through unchanged, as does content that fails to parse.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
