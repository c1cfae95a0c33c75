package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func computes a placeholder value from its arguments.
type Func func(args []string) (string, error)

type Registry struct {
	funcs map[string]Func
	now   func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	r.registerDefaults()
	return r
}

// WithClock replaces the time source of the time functions.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = func([]string) (string, error) {
		return r.now().UTC().Format(time.RFC3339), nil
	}
	r.funcs["timestamp"] = func([]string) (string, error) {
		return strconv.FormatInt(r.now().Unix(), 10), nil
	}
	r.funcs["timestampMs"] = func([]string) (string, error) {
		return strconv.FormatInt(r.now().UnixMilli(), 10), nil
	}
	r.funcs["date"] = func(args []string) (string, error) {
		layout := time.DateOnly
		if len(args) >= 1 && args[0] != "" {
			layout = args[0]
		}
		return r.now().UTC().Format(layout), nil
	}
	r.funcs["uuid"] = funcUUID
	r.funcs["random"] = funcRandom
	r.funcs["randomString"] = funcRandomString
	r.funcs["base64"] = unary(func(s string) (string, error) {
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	})
	r.funcs["base64Decode"] = unary(func(s string) (string, error) {
		decoded, err := base64.StdEncoding.DecodeString(s)
		return string(decoded), err
	})
	r.funcs["md5"] = unary(func(s string) (string, error) {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:]), nil
	})
	r.funcs["sha256"] = unary(func(s string) (string, error) {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:]), nil
	})
	r.funcs["urlEncode"] = unary(func(s string) (string, error) {
		return url.QueryEscape(s), nil
	})
	r.funcs["urlDecode"] = unary(url.QueryUnescape)
	r.funcs["env"] = funcEnv
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Names lists the registered functions in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// IsCall reports whether expr has the shape of a function call.
func IsCall(expr string) bool {
	return funcCallPattern.MatchString(expr)
}

// Call evaluates expr. ok is false when expr is not a call to a registered
// function; err reports arguments the function rejected.
func (r *Registry) Call(expr string) (value string, ok bool, err error) {
	matches := funcCallPattern.FindStringSubmatch(expr)
	if matches == nil {
		return "", false, nil
	}

	fn, found := r.funcs[matches[1]]
	if !found {
		return "", false, nil
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}

	value, err = fn(args)
	if err != nil {
		return "", true, fmt.Errorf("%s(): %w", matches[1], err)
	}
	return value, true, nil
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

// unary adapts a one-argument function; a missing argument is an empty string.
func unary(fn func(string) (string, error)) Func {
	return func(args []string) (string, error) {
		if len(args) < 1 {
			return "", nil
		}
		return fn(args[0])
	}
}

func intArg(args []string, i int, name string, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s argument %q is not a valid integer", name, args[i])
	}
	return v, nil
}

func funcUUID([]string) (string, error) {
	return uuid.NewString(), nil
}

func funcRandom(args []string) (string, error) {
	lo, err := intArg(args, 0, "min", 0)
	if err != nil {
		return "", err
	}
	hi, err := intArg(args, 1, "max", 100)
	if err != nil {
		return "", err
	}
	if hi < lo {
		return "", fmt.Errorf("max %d is below min %d", hi, lo)
	}
	return strconv.Itoa(rand.IntN(hi-lo+1) + lo), nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func funcRandomString(args []string) (string, error) {
	length, err := intArg(args, 0, "length", 16)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", fmt.Errorf("length %d is negative", length)
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(out), nil
}

func funcEnv(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("missing variable name")
	}
	if v, ok := os.LookupEnv(args[0]); ok {
		return v, nil
	}
	if len(args) >= 2 {
		return args[1], nil
	}
	return "", nil
}
