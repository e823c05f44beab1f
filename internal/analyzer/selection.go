package analyzer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"convanalyzer/internal/models"
)

var ErrInvalidSelection = errors.New("invalid selection")

// Selection is a 1-based inclusive window over the loaded conversations.
type Selection struct {
	All   bool
	Start int
	End   int
}

// ParseSelection accepts "all" (or "a"), a count "N", or a range "S-E".
func ParseSelection(input string) (Selection, error) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "all" || in == "a" {
		return Selection{All: true}, nil
	}
	if in == "" {
		return Selection{}, fmt.Errorf("%w: empty input", ErrInvalidSelection)
	}

	if startStr, endStr, ok := strings.Cut(in, "-"); ok {
		start, err := parsePositive(startStr)
		if err != nil {
			return Selection{}, err
		}
		end, err := parsePositive(endStr)
		if err != nil {
			return Selection{}, err
		}
		if start > end {
			return Selection{}, fmt.Errorf("%w: start %d is after end %d", ErrInvalidSelection, start, end)
		}
		return Selection{Start: start, End: end}, nil
	}

	n, err := parsePositive(in)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Start: 1, End: n}, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidSelection, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d must be positive", ErrInvalidSelection, n)
	}
	return n, nil
}

// Apply returns the selected conversations. Bounds past the end are clamped,
// so a window that starts beyond the input yields an empty slice.
func (s Selection) Apply(convs []models.Conversation) []models.Conversation {
	if s.All {
		return convs
	}
	from := s.Start - 1
	if from < 0 {
		from = 0
	}
	if from >= len(convs) {
		return []models.Conversation{}
	}
	to := s.End
	if to > len(convs) {
		to = len(convs)
	}
	return convs[from:to]
}

// Describe renders the selection for the confirmation prompt.
func (s Selection) Describe(total int) string {
	if s.All {
		return fmt.Sprintf("all %d conversations", total)
	}
	if s.Start == 1 {
		return fmt.Sprintf("first %d conversations", s.End)
	}
	return fmt.Sprintf("conversations %d-%d", s.Start, s.End)
}
