package result

import (
	"path"
	"regexp"
	"strings"
)

// idSeparator joins the segments of a canonical id.
const idSeparator = "::"

// annotationRe matches one trailing display annotation: a bracketed group
// separated from the id by whitespace, e.g. "test_x (Teaching)" or
// "test_x [module: exam]". Parametrize brackets glued to the name
// ("test_x[chromium]") are part of the id and are not matched.
var annotationRe = regexp.MustCompile(`\s+(\([^()]*\)|\[[^\[\]]*\]|（[^（）]*）|【[^【】]*】)\s*$`)

// ID is a parsed canonical test case identifier.
type ID struct {
	File  string
	Group string
	Case  string
}

// String renders the canonical "<file>::<group>::<case>" form. A missing
// group collapses to "<file>::<case>".
func (id ID) String() string {
	if id.Group == "" {
		return id.File + idSeparator + id.Case
	}
	return id.File + idSeparator + id.Group + idSeparator + id.Case
}

// Normalize strips display annotations and path noise from a raw id so that
// the line stream and the rendered table agree on one key.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		loc := annotationRe.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = strings.TrimSpace(s[:loc[0]])
	}
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimPrefix(s, "./")
	return s
}

// ParseID splits a (normalized) canonical id into its segments. Ids with more
// than three segments keep the innermost as the case and join the rest into
// the group, which covers nested classes.
func ParseID(raw string) ID {
	s := Normalize(raw)
	parts := strings.Split(s, idSeparator)
	switch len(parts) {
	case 0:
		return ID{}
	case 1:
		return ID{Case: parts[0]}
	case 2:
		return ID{File: parts[0], Case: parts[1]}
	default:
		return ID{
			File:  parts[0],
			Group: strings.Join(parts[1:len(parts)-1], idSeparator),
			Case:  parts[len(parts)-1],
		}
	}
}

// LooksLikeID reports whether s has the shape of a canonical id.
func LooksLikeID(s string) bool {
	i := strings.Index(s, idSeparator)
	return i > 0 && i+len(idSeparator) < len(s)
}

// Dir returns the slash-separated directory segments of the id's file path.
func (id ID) Dir() []string {
	dir := path.Dir(id.File)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	return strings.Split(strings.Trim(dir, "/"), "/")
}
