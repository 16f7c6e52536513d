package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tobyward/quill/internal/resolve"
)

// compare applies a comparison operator to two resolved operand values.
// When both sides parse as numbers the comparison is numeric; otherwise
// both are stringified first. Unresolved operands behave as the empty
// string, so comparing against a missing variable is not an error.
func compare(op string, left, right interface{}) (bool, error) {
	ls := resolve.Stringify(left)
	rs := resolve.Stringify(right)

	lf, lerr := strconv.ParseFloat(ls, 64)
	rf, rerr := strconv.ParseFloat(rs, 64)
	numeric := lerr == nil && rerr == nil

	switch op {
	case "=":
		if numeric {
			return lf == rf, nil
		}
		return ls == rs, nil
	case "!=":
		if numeric {
			return lf != rf, nil
		}
		return ls != rs, nil
	case ">":
		if numeric {
			return lf > rf, nil
		}
		return ls > rs, nil
	case ">=":
		if numeric {
			return lf >= rf, nil
		}
		return ls >= rs, nil
	case "<":
		if numeric {
			return lf < rf, nil
		}
		return ls < rs, nil
	case "<=":
		if numeric {
			return lf <= rf, nil
		}
		return ls <= rs, nil
	case "^=":
		return strings.HasPrefix(ls, rs), nil
	case "$=":
		return strings.HasSuffix(ls, rs), nil
	case "*=":
		return strings.Contains(ls, rs), nil
	case "|=":
		for _, item := range strings.Split(rs, ",") {
			if strings.TrimSpace(item) == ls {
				return true, nil
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("unknown comparison operator %q", op)
}
