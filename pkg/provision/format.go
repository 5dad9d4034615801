package provision

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultFormat prints the UUID, team name and profile name.
const DefaultFormat = "%u %t %n"

// ShortDateTime is the short date and time style used for %e and %c.
const ShortDateTime = "1/2/06, 3:04 PM"

// FormatHelp describes the directives understood by Renderer.
const FormatHelp = `%e  ExpirationDate
%c  CreationDate
%u  UUID
%a  AppIDName
%t  TeamName
%n  Name
%%  a literal %
A decimal width after % pads the value with spaces, e.g. %40n. Widths
above 4096 are ignored.`

// Renderer expands format strings for a profile.
//
// A format is scanned left to right without backtracking. Runs of characters
// other than '%' are copied, "%%" emits '%', and "%<width><letter>" emits a
// profile field right-padded with spaces to width. Unknown letters expand to
// nothing. A directive cut off by the end of the format expands to nothing.
type Renderer struct {
	Layout   string         // date layout, ShortDateTime when empty
	Location *time.Location // time.Local when nil
	Color    bool           // colour %e by expiration status
	WarnDays int
	Now      func() time.Time // time.Now when nil
}

// Render expands the whole format.
func (r *Renderer) Render(p *ProvisioningProfile, format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); {
		var out string
		out, i = r.Scan(p, format, i)
		sb.WriteString(out)
	}
	return sb.String()
}

// Scan performs one step starting at byte offset start: either a literal run
// or a single directive. It returns the expansion and the offset to resume at.
func (r *Renderer) Scan(p *ProvisioningProfile, format string, start int) (string, int) {
	if start >= len(format) {
		return "", len(format)
	}
	if format[start] == '%' {
		return r.ScanDirective(p, format, start)
	}
	return ScanLiteral(format, start)
}

// ScanLiteral returns the maximal run of non-'%' characters at start.
func ScanLiteral(format string, start int) (string, int) {
	if start >= len(format) {
		return "", len(format)
	}
	end := strings.IndexByte(format[start:], '%')
	if end < 0 {
		return format[start:], len(format)
	}
	return format[start : start+end], start + end
}

// MaxWidth is the largest field width honoured by a directive.
const MaxWidth = 4096

// ScanWidth reads an optional unsigned decimal at start. An absent number, or
// one above MaxWidth, yields 0.
func ScanWidth(format string, start int) (int, int) {
	i := start
	for i < len(format) && format[i] >= '0' && format[i] <= '9' {
		i++
	}
	if i == start {
		return 0, i
	}
	n, err := strconv.Atoi(format[start:i])
	if err != nil || n > MaxWidth {
		return 0, i
	}
	return n, i
}

// ScanDirective expands the directive that begins with '%' at start.
func (r *Renderer) ScanDirective(p *ProvisioningProfile, format string, start int) (string, int) {
	if start >= len(format) || format[start] != '%' {
		return "", start
	}
	i := start + 1
	if i >= len(format) {
		return "", len(format)
	}
	if format[i] == '%' {
		return "%", i + 1
	}

	width, i := ScanWidth(format, i)
	if i >= len(format) {
		return "", len(format)
	}
	letter, size := utf8.DecodeRuneInString(format[i:])
	i += size

	value := r.value(p, letter)
	padding := ""
	if n := utf8.RuneCountInString(value); width > n {
		padding = strings.Repeat(" ", width-n)
	}
	if letter == 'e' && r.Color {
		value = r.status(p).Color().Sprint(value)
	}
	return value + padding, i
}

func (r *Renderer) value(p *ProvisioningProfile, letter rune) string {
	switch letter {
	case 'e':
		return r.date(p.ExpirationDate)
	case 'c':
		return r.date(p.CreationDate)
	case 'u':
		return p.UUID
	case 'a':
		return p.AppIDName
	case 't':
		return p.TeamName
	case 'n':
		return p.Name
	default:
		return ""
	}
}

func (r *Renderer) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *Renderer) date(t time.Time) string {
	layout := r.Layout
	if layout == "" {
		layout = ShortDateTime
	}
	return t.In(r.location()).Format(layout)
}

func (r *Renderer) status(p *ProvisioningProfile) Status {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Classify(p.DaysToExpiration(now().In(r.location())), r.WarnDays)
}
