package result

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/tally/packages/errclass"
)

// Info describes what went wrong: the category, the value (usually an error
// or a message) and an optional trace.
type Info struct {
	Category *errclass.Category
	Value    any
	Trace    string
}

// Traced is implemented by errors that carry a printable trace.
type Traced interface {
	Trace() string
}

// FromError builds an Info from err. The category is taken from err when it
// carries one, otherwise fallback is used.
func FromError(err error, fallback *errclass.Category) Info {
	cat := errclass.Of(err)
	if cat == nil {
		cat = fallback
	}
	info := Info{Category: cat, Value: err}
	if t, ok := err.(Traced); ok {
		info.Trace = t.Trace()
	}
	return info
}

// Detail returns the value as text. A value that panics while being
// stringified yields a placeholder naming its category.
func (i Info) Detail() (detail string) {
	defer func() {
		if r := recover(); r != nil {
			detail = fmt.Sprintf("<unprintable %s object>", i.typeName())
		}
	}()

	switch v := i.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (i Info) typeName() string {
	if i.Category != nil {
		return i.Category.Name()
	}
	return fmt.Sprintf("%T", i.Value)
}

// String renders the info the way it appears in the error listing: the trace,
// then "Category: detail". Skips render as their bare reason.
func (i Info) String() string {
	detail := i.Detail()
	if i.Category.Is(errclass.Skip) {
		return detail
	}

	var sb strings.Builder
	if i.Trace != "" {
		sb.WriteString(strings.TrimRight(i.Trace, "\n"))
		sb.WriteString("\n")
	}
	name := i.typeName()
	switch {
	case name == "":
		sb.WriteString(detail)
	case detail == "":
		sb.WriteString(name)
	default:
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(detail)
	}
	return sb.String()
}
