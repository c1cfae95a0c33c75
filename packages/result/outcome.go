package result

import "github.com/abdul-hamid-achik/tally/packages/errclass"

// Kind enumerates outcome variants.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindError
	KindSkip
	KindCustom
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindError:
		return "error"
	case KindSkip:
		return "skip"
	case KindCustom:
		return "custom"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Outcome is the result of running (or trying to run) one test.
type Outcome struct {
	Kind Kind
	Info Info
	// Reason is set for skips.
	Reason string
	// Context is set for blocked outcomes: what kept the test from running.
	Context string
}

func Success() Outcome {
	return Outcome{Kind: KindSuccess}
}

func Failure(info Info) Outcome {
	return Outcome{Kind: KindFailure, Info: info}
}

func Error(info Info) Outcome {
	return Outcome{Kind: KindError, Info: info}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: KindSkip, Reason: reason}
}

// Custom tags info with cat so it is routed through the registry.
func Custom(cat *errclass.Category, info Info) Outcome {
	info.Category = cat
	return Outcome{Kind: KindCustom, Info: info}
}

func BlockedBy(info Info, context string) Outcome {
	return Outcome{Kind: KindBlocked, Info: info, Context: context}
}
