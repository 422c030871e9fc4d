package document

// Rule describes one class of asset-bearing element. Attrs are tried in
// order and the first one carrying a value wins.
type Rule struct {
	Tag        string
	Attrs      []string
	DefaultExt string
}

// Reference identifies where in a document an asset URL lives.
type Reference struct {
	Element    Element
	Attr       string
	DefaultExt string
}

// Value returns the literal attribute text the reference points at.
func (r Reference) Value() string {
	v, _ := r.Element.Attr(r.Attr)
	return v
}

// DefaultRules is the fixed matching order for archived pages.
var DefaultRules = []Rule{
	{Tag: "script", Attrs: []string{"src"}, DefaultExt: ".js"},
	{Tag: "link", Attrs: []string{"href"}, DefaultExt: ".css"},
	{Tag: "iframe", Attrs: []string{"src"}, DefaultExt: ".html"},
	{Tag: "img", Attrs: []string{"src", "data-src"}, DefaultExt: ".jpeg"},
}

// Match walks doc once per rule and yields at most one reference per element.
// Elements without a usable URL attribute are skipped.
func Match(doc *Document, rules []Rule) []Reference {
	var refs []Reference
	for _, rule := range rules {
		for _, el := range doc.FindAll(rule.Tag) {
			for _, attr := range rule.Attrs {
				if _, ok := el.hasValue(attr); ok {
					refs = append(refs, Reference{Element: el, Attr: attr, DefaultExt: rule.DefaultExt})
					break
				}
			}
		}
	}
	return refs
}
