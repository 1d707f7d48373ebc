package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the positional placeholder syntax.
type Dialect int

const (
	// DialectDollar emits $1, $2, ... and reuses the position of a repeated name (PostgreSQL).
	DialectDollar Dialect = iota
	// DialectQuestion emits ? once per occurrence (SQLite, MySQL).
	DialectQuestion
)

func (d Dialect) String() string {
	switch d {
	case DialectDollar:
		return "dollar"
	case DialectQuestion:
		return "question"
	default:
		return "Dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// ParseDialect accepts "dollar"/"postgres"/"pgx" and "question"/"sqlite"/"sqlite3".
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dollar", "postgres", "postgresql", "pgx":
		return DialectDollar, nil
	case "question", "sqlite", "sqlite3":
		return DialectQuestion, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDialect, s)
	}
}

var (
	// ErrMissingParam is returned when a statement names a parameter the step does not have.
	ErrMissingParam = errors.New("missing statement parameter")
	// ErrUnterminated is returned for an unterminated quote or block comment.
	ErrUnterminated = errors.New("unterminated literal or comment")
	// ErrInvalidDialect is returned by ParseDialect.
	ErrInvalidDialect = errors.New("invalid placeholder dialect")
	// ErrEmptyStatement is returned when a statement is blank.
	ErrEmptyStatement = errors.New("statement is empty")
)

// Bind rewrites :name parameters in statement to positional placeholders and returns the
// arguments in placeholder order. Quoted strings, quoted identifiers, dollar-quoted bodies,
// comments and :: casts are left untouched. Params the statement does not name are ignored.
func Bind(statement string, params map[string]any, dialect Dialect) (string, []any, error) {
	var (
		out       strings.Builder
		args      []any
		positions = map[string]int{}
	)

	out.Grow(len(statement))

	for i := 0; i < len(statement); {
		c := statement[i]

		switch {
		case c == '\'' || c == '"':
			end, err := skipQuoted(statement, i, c)
			if err != nil {
				return "", nil, err
			}

			out.WriteString(statement[i:end])
			i = end
		case c == '-' && strings.HasPrefix(statement[i:], "--"):
			end := strings.IndexByte(statement[i:], '\n')
			if end < 0 {
				end = len(statement) - i
			}

			out.WriteString(statement[i : i+end])
			i += end
		case c == '/' && strings.HasPrefix(statement[i:], "/*"):
			end := strings.Index(statement[i+2:], "*/")
			if end < 0 {
				return "", nil, fmt.Errorf("%w: block comment at offset %d", ErrUnterminated, i)
			}

			out.WriteString(statement[i : i+2+end+2])
			i += 2 + end + 2
		case c == '$':
			end, ok, err := skipDollarQuoted(statement, i)
			if err != nil {
				return "", nil, err
			}

			if !ok {
				out.WriteByte(c)
				i++

				continue
			}

			out.WriteString(statement[i:end])
			i = end
		case c == ':' && i+1 < len(statement) && statement[i+1] == ':':
			out.WriteString("::")
			i += 2
		case c == ':' && i+1 < len(statement) && isNameStart(statement[i+1]):
			end := i + 1
			for end < len(statement) && isNamePart(statement[end]) {
				end++
			}

			name := statement[i+1 : end]

			value, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
			}

			switch dialect {
			case DialectQuestion:
				args = append(args, value)
				out.WriteByte('?')
			default:
				pos, seen := positions[name]
				if !seen {
					args = append(args, value)
					pos = len(args)
					positions[name] = pos
				}

				out.WriteByte('$')
				out.WriteString(strconv.Itoa(pos))
			}

			i = end
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), args, nil
}

// skipQuoted returns the offset just past the quoted run starting at start. A doubled
// quote inside the run is an escaped quote.
func skipQuoted(s string, start int, quote byte) (int, error) {
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}

		if i+1 < len(s) && s[i+1] == quote {
			i++

			continue
		}

		return i + 1, nil
	}

	return 0, fmt.Errorf("%w: quote at offset %d", ErrUnterminated, start)
}

// skipDollarQuoted handles $tag$...$tag$ bodies. ok is false when the $ does not open one,
// as in a $1 placeholder.
func skipDollarQuoted(s string, start int) (int, bool, error) {
	end := start + 1
	for end < len(s) && isNamePart(s[end]) && !(end == start+1 && isDigit(s[end])) {
		end++
	}

	if end >= len(s) || s[end] != '$' {
		return 0, false, nil
	}

	tag := s[start : end+1]

	closing := strings.Index(s[end+1:], tag)
	if closing < 0 {
		return 0, false, fmt.Errorf("%w: dollar quote %s at offset %d", ErrUnterminated, tag, start)
	}

	return end + 1 + closing + len(tag), true, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
