package blocks

import "blockwiki/api/internal/util"

// NewID mints block ids. Tests may swap it for a deterministic sequence.
var NewID = func() string {
	return util.NewID("")
}

// DefaultContentFor returns the content a freshly created block of type t
// starts with. The result always has the shape ShapeOf(t) declares.
func DefaultContentFor(t Type) Content {
	switch t {
	case TypeTable:
		return defaultGrid()
	case TypeAlert:
		return Alert{Level: AlertInfo}
	case TypeCollapsible, TypeFAQ:
		return Collapsible{}
	case TypeSection, TypeMultiColumn:
		return Section{}
	case TypeList, TypeTodo:
		return Lines("")
	case TypeText, TypeHeading, TypeCode, TypeImage, TypeVideo, TypeQuote,
		TypeDivider, TypeLink, TypeChart, TypeTemplate, TypeMedia,
		TypeDateTime, TypeAuthor, TypeAutoNumber, TypeExternalAPI,
		TypeAttachment, TypeGoogleMaps:
		return Text("")
	}
	return Text("")
}

// MakeBlock creates a block of type t with a fresh id and default content.
func MakeBlock(t Type) Block {
	b := Block{ID: NewID(), Type: t, Content: DefaultContentFor(t)}
	if t == TypeCode {
		b.Language = DefaultLanguage
	}
	return b
}
