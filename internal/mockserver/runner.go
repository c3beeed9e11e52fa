package mockserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/code-tutor/tutor/internal/protocol"
)

// Result is one message produced by a run.
type Result struct {
	Type protocol.MessageType
	Text string
}

// Runner produces the messages the service streams back for a request.
type Runner interface {
	Run(ctx context.Context, req protocol.ExecutePayload) []Result
	Explain(req protocol.ExplainPayload) string
}

// ScriptRunner fakes execution by recognising print and raise statements
// line by line. It never runs the code.
type ScriptRunner struct{}

type dialect struct {
	print []string
	raise []string
	// errName is used when a raise/throw has no recognisable exception.
	errName string
}

var dialects = map[protocol.Language]dialect{
	protocol.Python: {
		print:   []string{"print("},
		raise:   []string{"raise "},
		errName: "Exception",
	},
	protocol.JavaScript: {
		print:   []string{"console.log(", "console.error(", "console.info("},
		raise:   []string{"throw new ", "throw "},
		errName: "Error",
	},
}

func (ScriptRunner) Run(ctx context.Context, req protocol.ExecutePayload) []Result {
	d, ok := dialects[req.Language]
	if !ok {
		return []Result{{Type: protocol.MsgError, Text: fmt.Sprintf("Unsupported language: %s", req.Language)}}
	}

	var results []Result
	for n, raw := range strings.Split(req.Code, "\n") {
		if ctx.Err() != nil {
			return results
		}
		line := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), ";"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if args, ok := call(line, d.print); ok {
			results = append(results, Result{Type: protocol.MsgOutput, Text: strings.Join(splitArgs(args), " ")})
			continue
		}
		if rest, ok := cutAny(line, d.raise); ok {
			results = append(results, Result{Type: protocol.MsgError, Text: raiseMessage(rest, d.errName, n+1)})
			return results
		}
	}
	return results
}

func (ScriptRunner) Explain(req protocol.ExplainPayload) string {
	code := strings.TrimSpace(req.Code)
	lines := 0
	if code != "" {
		lines = len(strings.Split(code, "\n"))
	}

	var b strings.Builder
	b.WriteString("## What this code does\n\n")
	fmt.Fprintf(&b, "The program has **%d** line(s).\n\n", lines)
	b.WriteString("```\n" + code + "\n```\n\n")

	output := strings.TrimSpace(req.Output)
	switch {
	case output == "":
		b.WriteString("It produced no output.\n")
	case strings.Contains(output, "Error") || strings.Contains(output, "Exception"):
		b.WriteString("It stopped with an error:\n\n")
		b.WriteString("```\n" + output + "\n```\n\n")
		b.WriteString("Read the last line of the error first; it names the exception and the reason.\n")
	default:
		b.WriteString("It printed:\n\n")
		b.WriteString("```\n" + output + "\n```\n")
	}
	return b.String()
}

// call matches prefix(args) and returns args.
func call(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) && strings.HasSuffix(line, ")") {
			return line[len(p) : len(line)-1], true
		}
	}
	return "", false
}

func cutAny(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// raiseMessage renders ValueError("bad") as "ValueError: bad".
func raiseMessage(expr, fallback string, line int) string {
	name, args := expr, ""
	if i := strings.IndexByte(expr, '('); i >= 0 && strings.HasSuffix(expr, ")") {
		name, args = expr[:i], expr[i+1:len(expr)-1]
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "\"'`") {
		name, args = fallback, expr
	}
	msg := strings.Join(splitArgs(args), " ")
	if msg == "" {
		return fmt.Sprintf("%s (line %d)", name, line)
	}
	return fmt.Sprintf("%s: %s (line %d)", name, msg, line)
}

// splitArgs splits a call's argument list on top-level commas and unquotes
// string literals.
func splitArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		depth int
	)
	flush := func() {
		if a := strings.TrimSpace(cur.String()); a != "" {
			args = append(args, unquote(a))
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case r == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return args
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
