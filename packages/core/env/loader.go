package env

import (
	"os"
	"sort"
	"strings"
)

// MergeVariables merges maps left to right; later sources win.
func MergeVariables(sources ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// LoadSystemEnv returns the process environment. With a prefix, only keys
// carrying it are returned, with the prefix stripped.
func LoadSystemEnv(prefix string) map[string]string {
	return parseEnviron(os.Environ(), prefix)
}

func parseEnviron(environ []string, prefix string) map[string]string {
	result := make(map[string]string)
	for _, e := range environ {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}

// Environ renders vars as a sorted KEY=value list for exec.Cmd.Env.
func Environ(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}
