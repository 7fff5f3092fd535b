package action

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsable is returned when a response contains no recognizable action.
var ErrUnparsable = errors.New("unparsable action")

var unescaper = strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\n`, "\n", `\t`, "\t", `\\`, `\`)

// Parse parses one action in call syntax. Surrounding <answer> tags and
// whitespace are ignored.
func Parse(text string) (Action, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "<answer>")
	s = strings.TrimSuffix(s, "</answer>")
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "finish("):
		return parseFinish(s)
	case strings.HasPrefix(s, "do("):
		return parseDo(s)
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnparsable, truncate(s, 80))
	}
}

func parseFinish(s string) (Action, error) {
	body, ok := callBody(s, "finish(")
	if !ok {
		return Action{}, fmt.Errorf("%w: unterminated finish call", ErrUnparsable)
	}
	body = strings.TrimSpace(body)
	msg := strings.TrimSpace(strings.TrimPrefix(body, "message="))
	msg = unquote(msg)

	a := Finish(msg)
	a.Raw = s
	return a, nil
}

func parseDo(s string) (Action, error) {
	body, ok := callBody(s, "do(")
	if !ok {
		return Action{}, fmt.Errorf("%w: unterminated do call", ErrUnparsable)
	}

	// Text input may contain commas and quotes, so everything after text=
	// is taken verbatim.
	if name, rest, ok := splitTypeCall(body); ok {
		a := Do(NameType, map[string]string{"text": unquote(strings.TrimSpace(rest))})
		if name == NameTypeName {
			a.Name = NameTypeName
		}
		a.Raw = s
		return a, nil
	}

	args, err := parseArgs(body)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	name, ok := args["action"]
	if !ok || name == "" {
		return Action{}, fmt.Errorf("%w: do call without action name", ErrUnparsable)
	}
	delete(args, "action")

	a := Do(name, args)
	a.Raw = s
	return a, nil
}

// callBody returns the text between prefix and the last closing paren.
func callBody(s, prefix string) (string, bool) {
	end := strings.LastIndex(s, ")")
	if end < len(prefix) {
		return "", false
	}
	return s[len(prefix):end], true
}

func splitTypeCall(body string) (name, rest string, ok bool) {
	for _, n := range []string{NameType, NameTypeName} {
		for _, q := range []string{`"`, `'`} {
			head := "action=" + q + n + q
			if !strings.HasPrefix(strings.TrimSpace(body), head) {
				continue
			}
			_, after, found := strings.Cut(body, "text=")
			if !found {
				return "", "", false
			}
			return n, after, true
		}
	}
	return "", "", false
}

// parseArgs parses key=value pairs. Values are quoted strings or bare
// tokens; bare tokens may contain bracketed lists with commas.
func parseArgs(s string) (map[string]string, error) {
	args := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == ',' || s[i] == '\t' || s[i] == '\n') {
			i++
		}
		if i >= len(s) {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("missing '=' in %q", s[i:])
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 1
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			args[key] = ""
			break
		}

		if q := s[i]; q == '"' || q == '\'' {
			end := closingQuote(s, i+1, q)
			if end < 0 {
				return nil, fmt.Errorf("unterminated value for %s", key)
			}
			args[key] = unescaper.Replace(s[i+1 : end])
			i = end + 1
			continue
		}

		j, depth := i, 0
	scan:
		for ; j < len(s); j++ {
			switch s[j] {
			case '[':
				depth++
			case ']':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					break scan
				}
			}
		}
		args[key] = strings.TrimSpace(s[i:j])
		i = j
	}
	return args, nil
}

func closingQuote(s string, from int, q byte) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return unescaper.Replace(s[1 : len(s)-1])
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
