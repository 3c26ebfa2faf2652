package harness

import (
	"fmt"
	"slices"
	"sort"
)

// EvaluateExpect checks exp against trace and returns one message per
// failed expectation. Rendered views are checked in name order.
func EvaluateExpect(exp Expect, trace Trace) []string {
	var errs []string

	if exp.Final != nil && *exp.Final != trace.Final {
		errs = append(errs, fmt.Sprintf("final: expected %d, got %d", *exp.Final, trace.Final))
	}

	names := make([]string, 0, len(exp.Rendered))
	for name := range exp.Rendered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want := exp.Rendered[name]
		got, ok := trace.Renders[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("rendered[%s]: view was never attached", name))
			continue
		}
		if !slices.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("rendered[%s]: expected %v, got %v", name, want, got))
		}
	}

	errs = appendCount(errs, "dispatches", exp.Dispatches, len(trace.Dispatches))
	errs = appendCount(errs, "mutations", exp.Mutations, len(trace.Mutations))
	errs = appendCount(errs, "handler_failures", exp.HandlerFailures, len(trace.HandlerFailures))

	return errs
}

func appendCount(errs []string, field string, want *int, got int) []string {
	if want == nil || *want == got {
		return errs
	}
	return append(errs, fmt.Sprintf("%s: expected %d, got %d", field, *want, got))
}
