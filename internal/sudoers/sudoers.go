// Package sudoers checks policy-file content against the sudoers grammar.
//
// Only syntax is checked: aliases are not resolved and include
// directives are recognised but never followed.
package sudoers

import (
	"fmt"
	"regexp"
	"strings"
)

// Diagnostic is a single syntax problem in policy content.
type Diagnostic struct {
	Line    int // 1-based physical line where the logical line starts
	Column  int // 1-based offset within the logical line
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%d:%d: syntax error: %s", d.Line, d.Column, d.Message)
}

// Format renders the diagnostic prefixed with the file it refers to.
func (d Diagnostic) Format(path string) string {
	return fmt.Sprintf("%s:%s", path, d.Error())
}

var (
	aliasName   = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	paramName   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	identItem   = regexp.MustCompile(`^(%:?[^\s,:=()!"#%]+|%#[0-9]+|#[0-9]+|\+[^\s,:=()!"]+|[^\s,:=()!"#%+][^\s,:=()!"]*|"[^"]+")$`)
	hostItem    = regexp.MustCompile(`^(\+[^\s,:=()!"]+|[^\s,:=()!"+][^\s,:=()!"]*)$`)
	commaSpaces = regexp.MustCompile(`\s*,\s*`)
)

var aliasKeywords = map[string]string{
	"User_Alias":  "user",
	"Runas_Alias": "user",
	"Host_Alias":  "host",
	"Cmnd_Alias":  "command",
	"Cmd_Alias":   "command",
}

var tags = map[string]bool{
	"NOPASSWD": true, "PASSWD": true,
	"NOEXEC": true, "EXEC": true,
	"SETENV": true, "NOSETENV": true,
	"LOG_INPUT": true, "NOLOG_INPUT": true,
	"LOG_OUTPUT": true, "NOLOG_OUTPUT": true,
	"MAIL": true, "NOMAIL": true,
	"FOLLOW": true, "NOFOLLOW": true,
	"INTERCEPT": true, "NOINTERCEPT": true,
}

var commandOptions = map[string]bool{
	"CWD": true, "CHROOT": true, "ROLE": true, "TYPE": true,
	"APPARMOR_PROFILE": true, "PRIVS": true, "LIMITPRIVS": true,
	"NOTBEFORE": true, "NOTAFTER": true, "TIMEOUT": true,
}

// logicalLine is one or more physical lines joined by trailing backslashes.
type logicalLine struct {
	number int
	text   string
}

// Validate checks content and returns every syntax problem found.
// An empty result means the content is acceptable.
func Validate(content []byte) []Diagnostic {
	var diags []Diagnostic
	for _, ll := range splitLines(string(content)) {
		if d := checkLine(ll.text); d != nil {
			d.Line = ll.number
			diags = append(diags, *d)
		}
	}
	return diags
}

func splitLines(content string) []logicalLine {
	var out []logicalLine
	var cur strings.Builder
	start := 0
	for i, raw := range strings.Split(content, "\n") {
		if cur.Len() == 0 {
			start = i + 1
		}
		if strings.HasSuffix(raw, "\\") && !strings.HasSuffix(raw, "\\\\") {
			cur.WriteString(strings.TrimSuffix(raw, "\\"))
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(raw)
		out = append(out, logicalLine{number: start, text: cur.String()})
		cur.Reset()
	}
	if cur.Len() > 0 {
		out = append(out, logicalLine{number: start, text: cur.String()})
	}
	return out
}

func fail(col int, format string, args ...any) *Diagnostic {
	return &Diagnostic{Column: col + 1, Message: fmt.Sprintf(format, args...)}
}

func checkLine(line string) *Diagnostic {
	trimmed := strings.TrimSpace(line)
	indent := len(line) - len(strings.TrimLeft(line, " \t"))

	for _, directive := range []string{"@includedir", "@include", "#includedir", "#include"} {
		if rest, ok := strings.CutPrefix(trimmed, directive); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return checkInclude(directive, strings.TrimSpace(rest), indent)
		}
	}

	body := stripComment(line)
	if strings.TrimSpace(body) == "" {
		return nil
	}

	word := strings.Fields(body)[0]
	switch {
	case word == "Defaults" || strings.HasPrefix(word, "Defaults:") || strings.HasPrefix(word, "Defaults@") ||
		strings.HasPrefix(word, "Defaults>") || strings.HasPrefix(word, "Defaults!"):
		return checkDefaults(body, indent)
	case aliasKeywords[word] != "":
		return checkAlias(word, body, indent)
	default:
		return checkUserSpec(body, indent)
	}
}

// stripComment cuts at the first '#' that is not quoted, escaped, or the
// start of a numeric uid/gid such as #1000 or %#100.
func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			inQuote = !inQuote
		case '#':
			if inQuote {
				continue
			}
			if i+1 < len(line) && line[i+1] >= '0' && line[i+1] <= '9' {
				continue
			}
			return line[:i]
		}
	}
	return line
}

func checkInclude(directive, arg string, col int) *Diagnostic {
	if arg == "" {
		return fail(col, "%s requires a path", directive)
	}
	if strings.HasPrefix(arg, `"`) {
		if len(arg) < 2 || !strings.HasSuffix(arg, `"`) {
			return fail(col, "unterminated quoted path in %s", directive)
		}
		return nil
	}
	if len(strings.Fields(arg)) != 1 {
		return fail(col, "%s takes a single path", directive)
	}
	return nil
}

func checkDefaults(body string, col int) *Diagnostic {
	trimmed := strings.TrimSpace(body)
	word := strings.Fields(trimmed)[0]
	if binding := strings.TrimPrefix(word, "Defaults"); binding != "" {
		target := binding[1:]
		if target == "" {
			return fail(col, "missing binding after %q", word)
		}
		for _, item := range strings.Split(target, ",") {
			if item == "" {
				return fail(col, "empty item in %q", word)
			}
		}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, word))
	if rest == "" {
		return fail(col, "Defaults entry has no parameters")
	}
	params, ok := splitOutsideQuotes(rest, ',')
	if !ok {
		return fail(col, "unterminated quoted string")
	}
	for _, p := range params {
		if d := checkParam(strings.TrimSpace(p), col); d != nil {
			return d
		}
	}
	return nil
}

func checkParam(p string, col int) *Diagnostic {
	if p == "" {
		return fail(col, "empty Defaults parameter")
	}
	name, value, hasValue := strings.Cut(p, "=")
	name = strings.TrimSpace(name)
	if hasValue {
		name = strings.TrimSpace(strings.TrimRight(name, "+-"))
		if strings.HasPrefix(name, "!") {
			return fail(col, "negated parameter %q cannot take a value", name)
		}
		if strings.TrimSpace(value) == "" {
			return fail(col, "parameter %q has an empty value", name)
		}
	} else {
		name = strings.TrimLeft(name, "!")
	}
	if !paramName.MatchString(name) {
		return fail(col, "invalid Defaults parameter %q", name)
	}
	return nil
}

func checkAlias(keyword, body string, col int) *Diagnostic {
	kind := aliasKeywords[keyword]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), keyword))
	if rest == "" {
		return fail(col, "%s has no definition", keyword)
	}
	defs, ok := splitOutsideQuotes(rest, ':')
	if !ok {
		return fail(col, "unterminated quoted string")
	}
	for _, def := range defs {
		name, members, found := strings.Cut(def, "=")
		name = strings.TrimSpace(name)
		if !found {
			return fail(col, "expected '=' after alias %q", name)
		}
		if !aliasName.MatchString(name) {
			return fail(col, "invalid alias name %q", name)
		}
		if name == "ALL" {
			return fail(col, "ALL is reserved and cannot be an alias name")
		}
		if d := checkList(kind, members, col); d != nil {
			return d
		}
	}
	return nil
}

func checkList(kind, list string, col int) *Diagnostic {
	items, ok := splitOutsideQuotes(list, ',')
	if !ok {
		return fail(col, "unterminated quoted string")
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if d := checkItem(kind, item, col); d != nil {
			return d
		}
	}
	return nil
}

func checkItem(kind, item string, col int) *Diagnostic {
	bare := strings.TrimSpace(strings.TrimLeft(item, "! \t"))
	if bare == "" {
		return fail(col, "empty %s in list", kind)
	}
	switch kind {
	case "user":
		if !identItem.MatchString(bare) {
			return fail(col, "invalid user %q", bare)
		}
	case "host":
		if !hostItem.MatchString(bare) {
			return fail(col, "invalid host %q", bare)
		}
	case "command":
		return checkCommand(bare, col)
	}
	return nil
}

func checkCommand(cmnd string, col int) *Diagnostic {
	program := strings.Fields(cmnd)[0]
	switch {
	case program == "ALL" || program == "sudoedit" || program == "list":
		return nil
	case aliasName.MatchString(program):
		return nil
	case strings.HasPrefix(program, "/"):
		return nil
	case strings.HasPrefix(program, "^"):
		// regular expression command
		return nil
	}
	return fail(col, "expected a fully qualified command, got %q", program)
}

// checkUserSpec parses: users hosts = cmnd_spec_list [: hosts = cmnd_spec_list]...
func checkUserSpec(body string, col int) *Diagnostic {
	left, right, found := strings.Cut(body, "=")
	if !found {
		return fail(col, "expected a user specification of the form 'users hosts = commands'")
	}
	fields := strings.Fields(commaSpaces.ReplaceAllString(strings.TrimSpace(left), ","))
	if len(fields) != 2 {
		return fail(col, "expected a user list followed by a host list, got %q", strings.TrimSpace(left))
	}
	if d := checkList("user", fields[0], col); d != nil {
		return d
	}
	if d := checkList("host", fields[1], col); d != nil {
		return d
	}

	p := &specParser{s: right, base: col + len(left) + 1}
	return p.parse()
}

type specParser struct {
	s    string
	pos  int
	base int
}

func (p *specParser) failHere(format string, args ...any) *Diagnostic {
	return fail(p.base+p.pos, format, args...)
}

func (p *specParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *specParser) eof() bool {
	p.skipSpace()
	return p.pos >= len(p.s)
}

func (p *specParser) parse() *Diagnostic {
	for {
		if d := p.cmndSpecList(); d != nil {
			return d
		}
		if p.eof() {
			return nil
		}
		// A ':' here starts another "hosts = commands" group.
		if p.s[p.pos] != ':' {
			return p.failHere("unexpected %q", p.s[p.pos:])
		}
		p.pos++
		eq := strings.IndexByte(p.s[p.pos:], '=')
		if eq < 0 {
			return p.failHere("expected 'hosts = commands' after ':'")
		}
		hosts := strings.TrimSpace(p.s[p.pos : p.pos+eq])
		if hosts == "" {
			return p.failHere("empty host list")
		}
		if d := checkList("host", commaSpaces.ReplaceAllString(hosts, ","), p.base+p.pos); d != nil {
			return d
		}
		p.pos += eq + 1
	}
}

func (p *specParser) cmndSpecList() *Diagnostic {
	for {
		if d := p.cmndSpec(); d != nil {
			return d
		}
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		return nil
	}
}

func (p *specParser) cmndSpec() *Diagnostic {
	if p.eof() {
		return p.failHere("missing command")
	}
	if p.s[p.pos] == '(' {
		if d := p.runas(); d != nil {
			return d
		}
	}
	for {
		p.skipSpace()
		word := p.peekWord()
		name, _, isOption := strings.Cut(word, "=")
		switch {
		case isOption && commandOptions[name]:
			p.pos += len(word)
		case strings.HasSuffix(word, ":") && tags[strings.TrimSuffix(word, ":")]:
			p.pos += len(word)
		default:
			return p.command()
		}
	}
}

// peekWord returns the run of characters up to whitespace, ',' or '(',
// including a terminating ':' if one is reached first.
func (p *specParser) peekWord() string {
	end := p.pos
	for end < len(p.s) && !strings.ContainsRune(" \t,(", rune(p.s[end])) {
		if p.s[end] == ':' {
			return p.s[p.pos : end+1]
		}
		end++
	}
	return p.s[p.pos:end]
}

func (p *specParser) runas() *Diagnostic {
	start := p.pos
	end := strings.IndexByte(p.s[p.pos:], ')')
	if end < 0 {
		return p.failHere("unterminated runas specification")
	}
	inner := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1

	users, groups, hasGroups := strings.Cut(inner, ":")
	if strings.TrimSpace(users) != "" {
		if d := checkList("user", users, p.base+start); d != nil {
			return d
		}
	}
	if hasGroups && strings.TrimSpace(groups) != "" {
		if d := checkList("user", groups, p.base+start); d != nil {
			return d
		}
	}
	return nil
}

// command consumes up to the next unescaped ',' or ':'.
func (p *specParser) command() *Diagnostic {
	p.skipSpace()
	start := p.pos
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '\\' && p.pos+1 < len(p.s) {
			b.WriteByte(p.s[p.pos+1])
			p.pos += 2
			continue
		}
		if c == ',' || c == ':' {
			break
		}
		b.WriteByte(c)
		p.pos++
	}
	cmnd := strings.TrimSpace(b.String())
	if cmnd == "" {
		return fail(p.base+start, "missing command")
	}
	return checkItem("command", cmnd, p.base+start)
}

// splitOutsideQuotes splits s on sep, ignoring separators inside double
// quotes or escaped with a backslash. ok is false on an unbalanced quote.
func splitOutsideQuotes(s string, sep byte) ([]string, bool) {
	var parts []string
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	if inQuote {
		return nil, false
	}
	return append(parts, s[last:]), true
}
