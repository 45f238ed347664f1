// Package textfmt renders and parses the small text fragments exchanged
// with chat users: index ranges, durations and registry listings.
package textfmt

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxSpan bounds how many indices a single range token may expand to.
const maxSpan = 10000

var ErrBadRange = errors.New("bad range")

// ParseRangeList parses a comma separated list of indices and inclusive
// ranges such as "1,3-5,2". Reversed ranges are accepted. The result is
// sorted ascending without duplicates.
func ParseRangeList(s string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, tok := range strings.Split(s, ",") {
		bounds := strings.Split(tok, "-")
		if len(bounds) > 2 {
			return nil, fmt.Errorf("%w: %q", ErrBadRange, tok)
		}
		nums := make([]int, 0, len(bounds))
		for _, b := range bounds {
			n, err := strconv.Atoi(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadRange, tok)
			}
			nums = append(nums, n)
		}
		sort.Ints(nums)
		lo, hi := nums[0], nums[len(nums)-1]
		if hi-lo >= maxSpan {
			return nil, fmt.Errorf("%w: %q spans more than %d indices", ErrBadRange, tok, maxSpan)
		}
		// hi may be math.MaxInt; stop before the increment wraps.
		for i := lo; ; i++ {
			seen[i] = struct{}{}
			if i == hi {
				break
			}
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}
