package locator

import (
	"fmt"
	"strings"
)

// Set holds the three candidate identifying expressions for one element,
// computed once at capture time and never recomputed downstream. CSS and
// XPath are always non-empty for a real element (tag-name fallback); ID is
// empty unless the element carries a non-empty id attribute.
type Set struct {
	ID    string `json:"id"`
	CSS   string `json:"css"`
	XPath string `json:"xpath"`
}

// Element is a point-in-time snapshot of the attributes the resolver
// needs. Element references are not durable across the capture/timeline
// boundary, so everything relevant is copied out at observation.
type Element struct {
	TagName   string `json:"tag_name"`
	ID        string `json:"id"`
	ClassAttr string `json:"class_attr"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	HasName   bool   `json:"has_name"`

	// SameTagCount and TagIndex (1-based) position the element among all
	// elements of the same tag in its document, for the positional
	// fallback XPath.
	SameTagCount int `json:"same_tag_count"`
	TagIndex     int `json:"tag_index"`
}

// Classes returns the whitespace-split class tokens of the element.
func (e Element) Classes() []string {
	return strings.Fields(e.ClassAttr)
}

func (e Element) hasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// Resolve computes the locator set for an element snapshot. It is
// deterministic, side-effect-free and never fails: any internal problem
// degrades to the tag-name fallback for the affected expression.
func Resolve(el Element) (set Set) {
	tag := strings.ToLower(el.TagName)
	if tag == "" {
		return Set{}
	}

	defer func() {
		if r := recover(); r != nil {
			set = Set{ID: el.ID, CSS: tag, XPath: "//" + tag}
		}
	}()

	set.ID = el.ID
	set.CSS = cssSelector(tag, el)
	set.XPath = xpathFor(tag, el)
	return set
}

func cssSelector(tag string, el Element) string {
	classes := el.Classes()
	if len(classes) == 0 {
		return tag
	}
	escaped := make([]string, 0, len(classes))
	for _, cls := range classes {
		esc, err := escapeCSSIdentifier(cls)
		if err != nil {
			// Unsupported token; degrade to the bare tag selector.
			return tag
		}
		escaped = append(escaped, esc)
	}
	return tag + "." + strings.Join(escaped, ".")
}

// xpathFor evaluates the ordered pattern rules, most specific first. The
// first applicable rule wins; rules never combine.
func xpathFor(tag string, el Element) string {
	text := strings.TrimSpace(el.Text)

	// Label-class leaf with meaningful text.
	if tag == "span" && el.hasClass("item-text") && text != "" {
		return fmt.Sprintf("//%s[contains(@class,'item-text') and normalize-space()=%s]", tag, Literal(text))
	}

	// Profile-role marker.
	if el.hasClass("profile") {
		return fmt.Sprintf("//%s[contains(@class,'profile')]", tag)
	}

	// Label class combined with a name attribute.
	if el.hasClass("item-text") && el.HasName && strings.TrimSpace(el.Name) != "" {
		return fmt.Sprintf("//%s[contains(@class,'item-text') and @name=%s]", tag, Literal(el.Name))
	}

	if el.ID != "" {
		return fmt.Sprintf("//%s[@id=%s]", tag, Literal(el.ID))
	}

	if classes := el.Classes(); len(classes) > 0 {
		return fmt.Sprintf("//%s[contains(@class,%s)]", tag, Literal(classes[0]))
	}

	// Tag-name fallback, positional when the tag is ambiguous in the
	// document.
	if el.SameTagCount > 1 && el.TagIndex >= 1 {
		return fmt.Sprintf("(//%s)[%d]", tag, el.TagIndex)
	}
	return "//" + tag
}

// Literal renders s as an XPath string literal. Values containing only
// single quotes are wrapped in double quotes; values containing both quote
// kinds are split and reassembled with concat().
func Literal(s string) string {
	hasSingle := strings.Contains(s, "'")
	hasDouble := strings.Contains(s, `"`)

	switch {
	case !hasSingle:
		return "'" + s + "'"
	case !hasDouble:
		return `"` + s + `"`
	}

	// Both quote kinds present: split on single quotes and stitch the
	// pieces back together. The split pieces contain no single quotes, so
	// each can be wrapped in single quotes; the separators supply the
	// single quotes themselves.
	parts := strings.Split(s, "'")
	args := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if part != "" {
			args = append(args, "'"+part+"'")
		}
		if i < len(parts)-1 {
			args = append(args, `"'"`)
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
