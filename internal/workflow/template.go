package workflow

import (
	"strconv"
	"strings"
	"time"

	"pasientflyt/backend/internal/patient"
)

// placeholderAliases maps the Norwegian template names onto the canonical
// ones so both {firstName} and {fornavn} render the same value.
var placeholderAliases = map[string]string{
	"fornavn":   "firstName",
	"etternavn": "lastName",
	"fulltNavn": "fullName",
	"epost":     "email",
	"telefon":   "phone",
}

// TemplateVars builds the substitution map for a patient. Values the
// patient does not have are simply absent, which leaves the placeholder
// literal in the rendered text. A nil patient yields an empty map.
func TemplateVars(p *patient.Patient, now time.Time) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	vars := map[string]string{
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"fullName":    p.FullName(),
		"status":      p.Status,
		"lifecycle":   p.Lifecycle,
		"totalVisits": strconv.Itoa(p.TotalVisits),
	}
	if p.Email != "" {
		vars["email"] = p.Email
	}
	if p.Phone != "" {
		vars["phone"] = p.Phone
	}
	if p.LastVisitDate != nil {
		vars["lastVisit"] = p.LastVisitDate.Format("02.01.2006")
		days := int(now.Sub(*p.LastVisitDate).Hours() / 24)
		vars["daysSinceVisit"] = strconv.Itoa(days)
	}
	return vars
}

// RenderTemplate substitutes {name} placeholders in a single pass.
// Unknown placeholders, unmatched braces and nested braces are left
// exactly as written; rendered values are never re-scanned.
func RenderTemplate(text string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		open := strings.IndexByte(text[i:], '{')
		if open < 0 {
			b.WriteString(text[i:])
			break
		}
		open += i
		b.WriteString(text[i:open])
		close := strings.IndexByte(text[open:], '}')
		if close < 0 {
			b.WriteString(text[open:])
			break
		}
		close += open
		name := text[open+1 : close]
		if canonical, ok := placeholderAliases[name]; ok {
			name = canonical
		}
		if val, ok := vars[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(text[open : close+1])
		}
		i = close + 1
	}
	return b.String()
}
