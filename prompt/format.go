// Package prompt compiles record fields into model message sequences.
package prompt

import (
	"fmt"
	"strings"
)

// Format substitutes {name} placeholders in template with values[name].
// Literal braces are written {{ and }}. An unknown placeholder or an unmatched
// brace is an error.
func Format(template string, values map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unmatched '{' at offset %d in template", i)
			}
			name := template[i+1 : i+1+end]
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("template placeholder {%s} has no value", name)
			}
			fmt.Fprint(&b, v)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("unmatched '}' at offset %d in template", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
