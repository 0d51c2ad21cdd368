package blocks

// List operations are pure. Each returns a new slice when the list changes
// and the very same slice when it does not, so callers detect no-ops with
// Same. Blocks that an operation does not touch are copied unchanged.

// Patch carries the fields an update may change. Nil fields are left alone.
type Patch struct {
	Content  Content
	Language *string
}

// Same reports whether a and b are the same list, not merely equal ones.
func Same(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// IndexOf returns the position of the top-level block with id, or -1.
func IndexOf(list []Block, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// Find looks up a block by id anywhere in the tree.
func Find(list []Block, id string) (Block, bool) {
	for _, b := range list {
		if b.ID == id {
			return b, true
		}
		if found, ok := Find(b.Children(), id); ok {
			return found, true
		}
	}
	return Block{}, false
}

// InsertAfter creates a default block of type t and places it directly after
// index. An index outside the list appends.
func InsertAfter(list []Block, t Type, index int) ([]Block, Block) {
	b := MakeBlock(t)
	return InsertBlockAfter(list, b, index), b
}

// InsertBlockAfter places b directly after index. An index outside the list
// appends.
func InsertBlockAfter(list []Block, b Block, index int) []Block {
	pos := index + 1
	if index < 0 || index >= len(list) {
		pos = len(list)
	}
	out := make([]Block, 0, len(list)+1)
	out = append(out, list[:pos]...)
	out = append(out, b)
	out = append(out, list[pos:]...)
	return out
}

// Append places b at the end of the list.
func Append(list []Block, b Block) []Block {
	return InsertBlockAfter(list, b, len(list))
}

// Update applies p to the block with id. Content that does not fit the
// block's type is reshaped. An unknown id or a patch that changes nothing
// returns list itself.
func Update(list []Block, id string, p Patch) []Block {
	idx := IndexOf(list, id)
	if idx < 0 {
		return list
	}
	b := list[idx]
	changed := false
	if p.Content != nil {
		next := Reshape(p.Content, b.Type)
		if !EqualContent(next, b.Content) {
			b.Content = next
			changed = true
		}
	}
	if p.Language != nil && b.Type == TypeCode {
		lang := *p.Language
		if lang == "" {
			lang = DefaultLanguage
		}
		if lang != b.Language {
			b.Language = lang
			changed = true
		}
	}
	if !changed {
		return list
	}
	b.raw = nil
	return replaceAt(list, idx, b)
}

// Delete removes the block with id. Deleting a section drops its subtree.
func Delete(list []Block, id string) []Block {
	idx := IndexOf(list, id)
	if idx < 0 {
		return list
	}
	out := make([]Block, 0, len(list)-1)
	out = append(out, list[:idx]...)
	return append(out, list[idx+1:]...)
}

// Duplicate inserts a deep copy of the block with id right after it. The
// copy and every block in its subtree get fresh ids.
func Duplicate(list []Block, id string) ([]Block, Block, bool) {
	idx := IndexOf(list, id)
	if idx < 0 {
		return list, Block{}, false
	}
	dup := rekey(list[idx])
	return InsertBlockAfter(list, dup, idx), dup, true
}

// MoveUp swaps the block with id with its predecessor.
func MoveUp(list []Block, id string) []Block {
	idx := IndexOf(list, id)
	if idx <= 0 {
		return list
	}
	return swap(list, idx, idx-1)
}

// MoveDown swaps the block with id with its successor.
func MoveDown(list []Block, id string) []Block {
	idx := IndexOf(list, id)
	if idx < 0 || idx >= len(list)-1 {
		return list
	}
	return swap(list, idx, idx+1)
}

// MoveToIndex removes the block fromID and reinserts it at the position
// currently held by toID, so it lands after toID when moving down and before
// it when moving up. An empty or unknown toID moves the block to the end.
func MoveToIndex(list []Block, fromID, toID string) []Block {
	from := IndexOf(list, fromID)
	if from < 0 || fromID == toID {
		return list
	}
	to := IndexOf(list, toID)
	if to < 0 {
		to = len(list) - 1
	}
	if from == to {
		return list
	}
	moved := list[from]
	out := make([]Block, 0, len(list))
	out = append(out, list[:from]...)
	out = append(out, list[from+1:]...)
	out = append(out, Block{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// ConvertType changes the type of the block with id and maps its content
// onto the new shape. Converting to the current type is a no-op.
func ConvertType(list []Block, id string, to Type) []Block {
	idx := IndexOf(list, id)
	if idx < 0 || list[idx].Type == to {
		return list
	}
	b := list[idx]
	b.Content = Convert(b.Content, to)
	b.Type = to
	switch {
	case to == TypeCode && b.Language == "":
		b.Language = DefaultLanguage
	case to != TypeCode:
		b.Language = ""
	}
	b.raw = nil
	return replaceAt(list, idx, b)
}

// WithinSection applies fn to the children of the section with id, wherever
// it sits in the tree, and rebuilds the path to it. A no-op from fn, or an id
// that does not name a container, returns list itself.
func WithinSection(list []Block, sectionID string, fn func([]Block) []Block) []Block {
	for i, b := range list {
		section, ok := b.Content.(Section)
		if !ok {
			continue
		}
		var children []Block
		if b.ID == sectionID {
			children = fn(section.Children)
		} else {
			children = WithinSection(section.Children, sectionID, fn)
		}
		if Same(children, section.Children) {
			if b.ID == sectionID {
				return list
			}
			continue
		}
		b.Content = Section{Title: section.Title, Children: children}
		b.raw = nil
		return replaceAt(list, i, b)
	}
	return list
}

// Walk visits every block depth-first, parents before children.
func Walk(list []Block, fn func(b Block, depth int)) {
	walk(list, 0, fn)
}

func walk(list []Block, depth int, fn func(Block, int)) {
	for _, b := range list {
		fn(b, depth)
		walk(b.Children(), depth+1, fn)
	}
}

func replaceAt(list []Block, idx int, b Block) []Block {
	out := make([]Block, len(list))
	copy(out, list)
	out[idx] = b
	return out
}

func swap(list []Block, i, j int) []Block {
	out := make([]Block, len(list))
	copy(out, list)
	out[i], out[j] = out[j], out[i]
	return out
}

func rekey(b Block) Block {
	b.ID = NewID()
	b.raw = nil
	b.Content = CloneContent(b.Content)
	if section, ok := b.Content.(Section); ok {
		for i := range section.Children {
			section.Children[i] = rekey(section.Children[i])
		}
	}
	return b
}
