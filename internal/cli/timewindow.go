package cli

import (
	"fmt"

	"github.com/triagelabs/chainsaw/internal/datetime"
)

// parseTimeWindow parses the --from/--to flags shared by hunt and search,
// returning nil pointers for flags left empty.
func parseTimeWindow(from, to string) (*datetime.DateTime, *datetime.DateTime, error) {
	var fromPtr, toPtr *datetime.DateTime
	if from != "" {
		t, err := datetime.Parse(from)
		if err != nil {
			return nil, nil, fmt.Errorf("--from: %w", err)
		}
		fromPtr = &t
	}
	if to != "" {
		t, err := datetime.Parse(to)
		if err != nil {
			return nil, nil, fmt.Errorf("--to: %w", err)
		}
		toPtr = &t
	}
	return fromPtr, toPtr, nil
}
