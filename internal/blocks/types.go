// Package blocks defines the block document model: the closed set of block
// types, the content shape each type owns, and pure operations over ordered
// block sequences.
package blocks

// Type tags a block. The set is closed; ShapeOf and DefaultContentFor switch
// over every member and the exhaustive linter flags a missing branch.
type Type string

const (
	TypeText        Type = "text"
	TypeHeading     Type = "heading"
	TypeCode        Type = "code"
	TypeList        Type = "list"
	TypeImage       Type = "image"
	TypeVideo       Type = "video"
	TypeQuote       Type = "quote"
	TypeDivider     Type = "divider"
	TypeTable       Type = "table"
	TypeSection     Type = "section"
	TypeCollapsible Type = "collapsible"
	TypeLink        Type = "link"
	TypeChart       Type = "chart"
	TypeTemplate    Type = "template"
	TypeMedia       Type = "media"
	TypeAlert       Type = "alert"
	TypeFAQ         Type = "faq"
	TypeDateTime    Type = "datetime"
	TypeAuthor      Type = "author"
	TypeAutoNumber  Type = "autoNumber"
	TypeExternalAPI Type = "externalAPI"
	TypeAttachment  Type = "attachment"
	TypeGoogleMaps  Type = "googlemaps"
	TypeMultiColumn Type = "multiColumn"
	TypeTodo        Type = "todo"
)

// AllTypes lists every block type in palette order.
var AllTypes = []Type{
	TypeText,
	TypeHeading,
	TypeCode,
	TypeList,
	TypeImage,
	TypeVideo,
	TypeQuote,
	TypeDivider,
	TypeTable,
	TypeSection,
	TypeCollapsible,
	TypeLink,
	TypeChart,
	TypeTemplate,
	TypeMedia,
	TypeAlert,
	TypeFAQ,
	TypeDateTime,
	TypeAuthor,
	TypeAutoNumber,
	TypeExternalAPI,
	TypeAttachment,
	TypeGoogleMaps,
	TypeMultiColumn,
	TypeTodo,
}

var knownTypes = func() map[Type]struct{} {
	known := make(map[Type]struct{}, len(AllTypes))
	for _, t := range AllTypes {
		known[t] = struct{}{}
	}
	return known
}()

// Valid reports whether t belongs to the closed type set.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// ParseType returns the Type named by s.
func ParseType(s string) (Type, bool) {
	t := Type(s)
	return t, t.Valid()
}

// Shape identifies the Go type a block's Content must have.
type Shape int

const (
	ShapeText Shape = iota + 1
	ShapeLines
	ShapeGrid
	ShapeCollapsible
	ShapeAlert
	ShapeSection
)

func (s Shape) String() string {
	switch s {
	case ShapeText:
		return "text"
	case ShapeLines:
		return "lines"
	case ShapeGrid:
		return "grid"
	case ShapeCollapsible:
		return "collapsible"
	case ShapeAlert:
		return "alert"
	case ShapeSection:
		return "section"
	}
	return "unknown"
}

// ShapeOf returns the content shape declared by t. Types outside the closed
// set (written by a newer client) are treated as plain text.
func ShapeOf(t Type) Shape {
	switch t {
	case TypeText, TypeHeading, TypeCode, TypeImage, TypeVideo, TypeQuote,
		TypeDivider, TypeLink, TypeChart, TypeTemplate, TypeMedia,
		TypeDateTime, TypeAuthor, TypeAutoNumber, TypeExternalAPI,
		TypeAttachment, TypeGoogleMaps:
		return ShapeText
	case TypeList, TypeTodo:
		return ShapeLines
	case TypeTable:
		return ShapeGrid
	case TypeCollapsible, TypeFAQ:
		return ShapeCollapsible
	case TypeAlert:
		return ShapeAlert
	case TypeSection, TypeMultiColumn:
		return ShapeSection
	}
	return ShapeText
}

// IsContainer reports whether blocks of type t hold child blocks.
func IsContainer(t Type) bool {
	return ShapeOf(t) == ShapeSection
}

// NeedsInput reports whether a freshly converted block of type t should open
// straight into editing.
func NeedsInput(t Type) bool {
	switch t {
	case TypeDivider, TypeAutoNumber:
		return false
	default:
		return true
	}
}

// urlTyped reports whether the text content of t is a link target.
func urlTyped(t Type) bool {
	switch t {
	case TypeImage, TypeVideo, TypeLink, TypeMedia, TypeAttachment, TypeExternalAPI, TypeGoogleMaps:
		return true
	default:
		return false
	}
}
