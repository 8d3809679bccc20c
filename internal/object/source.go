package object

import "github.com/systemshift/memex-object/internal/dag"

// Templates understood by object/new.
const (
	TemplateEmpty     = ""
	TemplateUnixFSDir = "unixfs-dir"
)

// Source describes how Create obtains a node: from a daemon-side template
// or from caller-supplied content.
type Source interface {
	isSource()
}

// Template asks the daemon to create a node from a named template.
type Template struct {
	Name string
}

// Content is a node built from data and links by the client and stored with
// Put.
type Content struct {
	Data  []byte
	Links []dag.Link
}

func (Template) isSource() {}
func (Content) isSource()  {}

// FromTemplate returns a Source for the named template.
func FromTemplate(name string) Source {
	return Template{Name: name}
}

// FromContent returns a Source for a node built from data and links.
func FromContent(data []byte, links []dag.Link) Source {
	return Content{Data: data, Links: links}
}
