package notifications

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Dispatch errors.
var (
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrNoRecipients       = errors.New("no deliverable recipients")
	ErrSenderPanic        = errors.New("sender panicked")
)

// PartialError reports recipients that failed while at least one other
// recipient of the same message succeeded.
type PartialError struct {
	Total  int
	Failed map[string]error // keyed by recipient address
}

func (e *PartialError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	return fmt.Sprintf("%d of %d recipients failed: %s", len(e.Failed), e.Total, strings.Join(parts, "; "))
}
