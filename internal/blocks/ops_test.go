package blocks

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreRaw = cmpopts.IgnoreUnexported(Block{})

// seqIDs makes NewID return n1, n2, ... for the rest of the test.
func seqIDs(t *testing.T) {
	t.Helper()
	prev := NewID
	n := 0
	NewID = func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
	t.Cleanup(func() { NewID = prev })
}

func textBlock(id, text string) Block {
	return Block{ID: id, Type: TypeText, Content: Text(text)}
}

func ids(list []Block) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func TestDefaultContentMatchesShapeForEveryType(t *testing.T) {
	require.Len(t, AllTypes, 25)
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid(), typ)
		assert.Equal(t, ShapeOf(typ), DefaultContentFor(typ).Shape(), "type %s", typ)
		b := MakeBlock(typ)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, ShapeOf(typ), b.Content.Shape())
	}
	assert.Equal(t, DefaultLanguage, MakeBlock(TypeCode).Language)
	assert.Equal(t, Grid{{"", ""}, {"", ""}}, DefaultContentFor(TypeTable))
	assert.Equal(t, Alert{Level: AlertInfo}, DefaultContentFor(TypeAlert))

	_, ok := ParseType("spreadsheet")
	assert.False(t, ok)
}

func TestInsertAfter(t *testing.T) {
	seqIDs(t)
	list := []Block{textBlock("a", "A"), textBlock("b", "B")}

	got, created := InsertAfter(list, TypeHeading, 0)
	assert.Equal(t, []string{"a", "n1", "b"}, ids(got))
	assert.Equal(t, TypeHeading, created.Type)
	assert.Equal(t, []string{"a", "b"}, ids(list), "input must not change")

	got, _ = InsertAfter(list, TypeText, 7)
	assert.Equal(t, []string{"a", "b", "n2"}, ids(got))

	got, _ = InsertAfter(nil, TypeText, -1)
	assert.Equal(t, []string{"n3"}, ids(got))
}

func TestUpdate(t *testing.T) {
	list := []Block{textBlock("a", "A"), {ID: "t", Type: TypeTable, Content: Grid{{"x"}}}}

	got := Update(list, "a", Patch{Content: Text("A2")})
	require.False(t, Same(got, list))
	assert.Equal(t, Text("A2"), got[0].Content)
	assert.Equal(t, Text("A"), list[0].Content)

	assert.True(t, Same(list, Update(list, "a", Patch{Content: Text("A")})), "equal content is a no-op")
	assert.True(t, Same(list, Update(list, "missing", Patch{Content: Text("z")})))

	got = Update(list, "t", Patch{Content: Text("1\t2\n3")})
	assert.Equal(t, Grid{{"1", "2"}, {"3", ""}}, got[1].Content)

	lang := "go"
	assert.True(t, Same(list, Update(list, "a", Patch{Language: &lang})), "language only applies to code")
}

func TestUpdateCodeLanguage(t *testing.T) {
	list := []Block{{ID: "c", Type: TypeCode, Content: Text("x"), Language: DefaultLanguage}}
	lang := "go"
	got := Update(list, "c", Patch{Language: &lang})
	assert.Equal(t, "go", got[0].Language)

	empty := ""
	got = Update(got, "c", Patch{Language: &empty})
	assert.Equal(t, DefaultLanguage, got[0].Language)
}

func TestDelete(t *testing.T) {
	list := []Block{textBlock("a", "A")}
	got := Delete(list, "a")
	assert.Empty(t, got)
	assert.False(t, Same(got, list))
	assert.True(t, Same(list, Delete(list, "zzz")))
}

func TestDuplicateThenConvertToTable(t *testing.T) {
	seqIDs(t)
	list := []Block{{ID: "1", Type: TypeHeading, Content: Text("H")}}

	list, dup, ok := Duplicate(list, "1")
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.NotEqual(t, "1", dup.ID)
	assert.Equal(t, dup.ID, list[1].ID)
	assert.Equal(t, Text("H"), list[1].Content)

	list = ConvertType(list, dup.ID, TypeTable)
	assert.Equal(t, TypeTable, list[1].Type)
	assert.Equal(t, Grid{{"H"}}, list[1].Content)
	assert.Equal(t, Block{ID: "1", Type: TypeHeading, Content: Text("H")}, list[0])
}

func TestDuplicateSectionGivesEveryDescendantANewID(t *testing.T) {
	seqIDs(t)
	inner := Block{ID: "s2", Type: TypeSection, Content: Section{Title: "inner", Children: []Block{textBlock("c2", "deep")}}}
	list := []Block{{ID: "s1", Type: TypeSection, Content: Section{Title: "outer", Children: []Block{textBlock("c1", "x"), inner}}}}

	got, dup, ok := Duplicate(list, "s1")
	require.True(t, ok)

	seen := map[string]int{}
	Walk(got, func(b Block, _ int) { seen[b.ID]++ })
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s appears %d times", id, n)
	}
	assert.Len(t, seen, 8)

	// edits to the copy must not reach the original
	section := dup.Content.(Section)
	section.Children[0].Content = Text("changed")
	orig, _ := Find(got, "c1")
	assert.Equal(t, Text("x"), orig.Content)
}

func TestDuplicateTwiceGivesDistinctIDs(t *testing.T) {
	orig := Block{ID: "t", Type: TypeTable, Content: Grid{{"a", "b"}, {"c", "d"}}}
	list := []Block{orig}

	list, first, ok := Duplicate(list, "t")
	require.True(t, ok)
	list, second, ok := Duplicate(list, "t")
	require.True(t, ok)

	require.Len(t, list, 3)
	seen := map[string]bool{}
	for _, b := range list {
		assert.False(t, seen[b.ID], "id %s repeated", b.ID)
		seen[b.ID] = true
		assert.Equal(t, orig.Type, b.Type)
		if diff := cmp.Diff(orig.Content, b.Content); diff != "" {
			t.Errorf("content of %s differs (-want +got):\n%s", b.ID, diff)
		}
	}
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{"t", second.ID, first.ID}, ids(list))

	// copies do not share storage with the original
	list[1].Content.(Grid)[0][0] = "changed"
	assert.Equal(t, "a", orig.Content.(Grid)[0][0])
}

func TestOperationsKeepUntargetedIDs(t *testing.T) {
	base := []Block{textBlock("a", "A"), textBlock("b", "B"), textBlock("c", "C"), textBlock("d", "D")}

	tests := []struct {
		name   string
		target string
		op     func([]Block) []Block
	}{
		{"insert after", "", func(l []Block) []Block { out, _ := InsertAfter(l, TypeQuote, 1); return out }},
		{"delete", "b", func(l []Block) []Block { return Delete(l, "b") }},
		{"move up", "c", func(l []Block) []Block { return MoveUp(l, "c") }},
		{"move down", "a", func(l []Block) []Block { return MoveDown(l, "a") }},
		{"move to index", "a", func(l []Block) []Block { return MoveToIndex(l, "a", "c") }},
		{"duplicate", "", func(l []Block) []Block { out, _, _ := Duplicate(l, "d"); return out }},
		{"convert", "b", func(l []Block) []Block { return ConvertType(l, "b", TypeCode) }},
		{"update", "c", func(l []Block) []Block { return Update(l, "c", Patch{Content: Text("new")}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op(base)
			present := map[string]Block{}
			for _, b := range got {
				present[b.ID] = b
			}
			for _, b := range base {
				if b.ID == tt.target && tt.name == "delete" {
					assert.NotContains(t, present, b.ID)
					continue
				}
				kept, ok := present[b.ID]
				require.True(t, ok, "block %s lost its id", b.ID)
				if b.ID != tt.target {
					assert.Equal(t, b.Content, kept.Content, "untargeted block %s changed", b.ID)
				}
			}
		})
	}

	// a sequence of operations still leaves untouched blocks alone
	seqIDs(t)
	list, _ := InsertAfter(base, TypeText, 0)
	list = Delete(list, "c")
	list = MoveDown(list, "a")
	list, _, _ = Duplicate(list, "b")
	assert.Equal(t, []string{"n1", "a", "b", "n2", "d"}, ids(list))
}

func TestMoveUpAndDown(t *testing.T) {
	list := []Block{textBlock("a", ""), textBlock("b", ""), textBlock("c", "")}

	assert.True(t, Same(list, MoveUp(list, "a")))
	assert.True(t, Same(list, MoveDown(list, "c")))
	assert.Equal(t, []string{"b", "a", "c"}, ids(MoveUp(list, "b")))
	assert.Equal(t, []string{"a", "c", "b"}, ids(MoveDown(list, "b")))
}

func TestMoveToIndex(t *testing.T) {
	list := []Block{textBlock("a", ""), textBlock("b", ""), textBlock("c", ""), textBlock("d", "")}

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"down lands after target", "a", "c", []string{"b", "c", "a", "d"}},
		{"up lands before target", "d", "b", []string{"a", "d", "b", "c"}},
		{"empty target appends", "b", "", []string{"a", "c", "d", "b"}},
		{"unknown target appends", "a", "zz", []string{"b", "c", "d", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoveToIndex(list, tt.from, tt.to)
			assert.Equal(t, tt.want, ids(got))
			assert.ElementsMatch(t, ids(list), ids(got), "a move only reorders")
		})
	}

	assert.True(t, Same(list, MoveToIndex(list, "b", "b")))
	assert.True(t, Same(list, MoveToIndex(list, "d", "")))
	assert.True(t, Same(list, MoveToIndex(list, "nope", "a")))
}

func TestConvertType(t *testing.T) {
	tests := []struct {
		name string
		from Block
		to   Type
		want Content
	}{
		{"text to list", textBlock("x", "a\nb"), TypeList, Lines("a\nb")},
		{"text to collapsible", textBlock("x", "title\nbody\nmore"), TypeCollapsible, Collapsible{Title: "title", Body: "body\nmore"}},
		{"text to alert", textBlock("x", "careful"), TypeAlert, Alert{Level: AlertInfo, Text: "careful"}},
		{"text to section", textBlock("x", "part"), TypeSection, Section{Title: "part"}},
		{"plain text to image resets", textBlock("x", "not a url"), TypeImage, Text("")},
		{"url to image kept", textBlock("x", "https://example.com/a.png"), TypeImage, Text("https://example.com/a.png")},
		{"anything to divider resets", textBlock("x", "words"), TypeDivider, Text("")},
		{"table to text", Block{ID: "x", Type: TypeTable, Content: Grid{{"a", "b"}, {"c", "d"}}}, TypeText, Text("a\tb\nc\td")},
		{"todo to table", Block{ID: "x", Type: TypeTodo, Content: Lines("one\ntwo")}, TypeTable, Grid{{"one"}, {"two"}}},
		{"empty text to table", textBlock("x", ""), TypeTable, Grid{{"", ""}, {"", ""}}},
		{"faq to collapsible keeps both parts", Block{ID: "x", Type: TypeFAQ, Content: Collapsible{Title: "Q", Body: "A"}}, TypeCollapsible, Collapsible{Title: "Q", Body: "A"}},
		{"alert to quote", Block{ID: "x", Type: TypeAlert, Content: Alert{Level: AlertError, Text: "boom"}}, TypeQuote, Text("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertType([]Block{tt.from}, "x", tt.to)
			require.Len(t, got, 1)
			assert.Equal(t, tt.to, got[0].Type)
			if diff := cmp.Diff(tt.want, got[0].Content, ignoreRaw); diff != "" {
				t.Errorf("content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvertTypeIsAlwaysShapeCorrect(t *testing.T) {
	for _, from := range AllTypes {
		for _, to := range AllTypes {
			b := MakeBlock(from)
			b.Content = Reshape(Text("line one\nline two"), from)
			got := ConvertType([]Block{b}, b.ID, to)
			require.Len(t, got, 1)
			assert.Equal(t, ShapeOf(to), got[0].Content.Shape(), "%s -> %s", from, to)
			if to == TypeCode {
				assert.NotEmpty(t, got[0].Language)
			} else {
				assert.Empty(t, got[0].Language)
			}
		}
	}
}

func TestConvertTypeSameTypeIsNoOp(t *testing.T) {
	list := []Block{textBlock("a", "x")}
	assert.True(t, Same(list, ConvertType(list, "a", TypeText)))
	assert.True(t, Same(list, ConvertType(list, "missing", TypeTable)))
}

func TestWithinSection(t *testing.T) {
	seqIDs(t)
	inner := Block{ID: "s2", Type: TypeSection, Content: Section{Title: "inner"}}
	list := []Block{
		textBlock("a", "top"),
		{ID: "s1", Type: TypeSection, Content: Section{Title: "outer", Children: []Block{inner}}},
	}

	got := WithinSection(list, "s2", func(children []Block) []Block {
		out, _ := InsertAfter(children, TypeQuote, len(children)-1)
		return out
	})
	require.False(t, Same(got, list))
	assert.Equal(t, list[0], got[0])
	found, ok := Find(got, "n1")
	require.True(t, ok)
	assert.Equal(t, TypeQuote, found.Type)
	_, ok = Find(list, "n1")
	assert.False(t, ok, "input must not change")

	noop := WithinSection(list, "s2", func(children []Block) []Block { return children })
	assert.True(t, Same(list, noop))
	assert.True(t, Same(list, WithinSection(list, "a", func([]Block) []Block { return nil })))
}

func TestSameDistinguishesEqualCopies(t *testing.T) {
	list := []Block{textBlock("a", "x")}
	cp := append([]Block(nil), list...)
	assert.True(t, Same(list, list))
	assert.False(t, Same(list, cp))
}
