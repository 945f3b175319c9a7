package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ExpectKind selects how a step's result is judged.
type ExpectKind int

const (
	// ExpectExit compares the exit code.
	ExpectExit ExpectKind = iota
	// ExpectContains looks for a substring in the combined output.
	ExpectContains
	// ExpectMatches applies a regular expression to the combined output.
	ExpectMatches
)

// Expectation is a parsed ValidationStep.Expect.
type Expectation struct {
	Kind    ExpectKind
	Code    int
	Text    string
	Pattern *regexp.Regexp
}

// ParseExpectation parses one of:
//   - "" or "exit N"
//   - "output contains X"
//   - "output matches /regex/"
func ParseExpectation(s string) (Expectation, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Expectation{Kind: ExpectExit}, nil

	case strings.HasPrefix(s, "exit "):
		code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(s, "exit ")))
		if err != nil || code < 0 || code > 255 {
			return Expectation{}, fmt.Errorf("invalid exit code in %q", s)
		}
		return Expectation{Kind: ExpectExit, Code: code}, nil

	case strings.HasPrefix(s, "output contains "):
		text := strings.TrimPrefix(s, "output contains ")
		if text == "" {
			return Expectation{}, fmt.Errorf("empty substring in %q", s)
		}
		return Expectation{Kind: ExpectContains, Text: text}, nil

	case strings.HasPrefix(s, "output matches "):
		body := strings.TrimSpace(strings.TrimPrefix(s, "output matches "))
		if len(body) < 2 || body[0] != '/' || body[len(body)-1] != '/' {
			return Expectation{}, fmt.Errorf("regex must be delimited by slashes in %q", s)
		}
		re, err := regexp.Compile(body[1 : len(body)-1])
		if err != nil {
			return Expectation{}, fmt.Errorf("invalid regex in %q: %w", s, err)
		}
		return Expectation{Kind: ExpectMatches, Text: re.String(), Pattern: re}, nil
	}
	return Expectation{}, fmt.Errorf("unsupported expectation %q", s)
}

// Check reports whether a command result meets the expectation.
func (e Expectation) Check(exitCode int, output string) bool {
	switch e.Kind {
	case ExpectContains:
		return strings.Contains(output, e.Text)
	case ExpectMatches:
		return e.Pattern.MatchString(output)
	default:
		return exitCode == e.Code
	}
}

func (e Expectation) String() string {
	switch e.Kind {
	case ExpectContains:
		return "output contains " + e.Text
	case ExpectMatches:
		return "output matches /" + e.Text + "/"
	default:
		return "exit " + strconv.Itoa(e.Code)
	}
}
