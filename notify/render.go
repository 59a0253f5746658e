package notify

import (
	"sort"
	"strings"
)

// Render substitutes every {{key}} in tmpl with vars[key]. Placeholders without
// a value are left as they are. Substitution is a single pass, so values that
// look like placeholders are not expanded again.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
