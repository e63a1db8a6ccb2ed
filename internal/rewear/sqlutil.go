package rewear

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	writeKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|merge|call|replace|lock)\b`)
	limitClause  = regexp.MustCompile(`(?i)\blimit\s+(\d+|\?|\$\d+)`)
)

// prepareAdHocQuery checks that query is a single SELECT or WITH statement
// and appends LIMIT when it has none. A limit of 0 leaves it uncapped.
// The returned statement has leading comments and a trailing ';' removed.
func prepareAdHocQuery(query string, limit int) (string, error) {
	body := strings.TrimSpace(skipLeadingComments(query))
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	lower := strings.ToLower(body)

	switch {
	case lower == "":
		return "", errors.New("statement is empty")
	case !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with"):
		return "", errors.New("statement is not read-only; only SELECT and WITH are allowed")
	case writeKeyword.MatchString(lower):
		return "", errors.New("statement contains write/DDL keywords")
	case strings.Contains(lower, ";"):
		return "", errors.New("only one statement may be run at a time")
	}

	if limit > 0 && !limitClause.MatchString(lower) {
		body = fmt.Sprintf("%s LIMIT %d", body, limit)
	}
	return body, nil
}

func skipLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)

		if rest, ok := strings.CutPrefix(s, "--"); ok {
			_, after, found := strings.Cut(rest, "\n")
			if !found {
				return ""
			}
			s = after
			continue
		}
		if rest, ok := strings.CutPrefix(s, "/*"); ok {
			_, after, found := strings.Cut(rest, "*/")
			if !found {
				return ""
			}
			s = after
			continue
		}
		return s
	}
}
