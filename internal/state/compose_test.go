package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type control struct {
	NextID uint64
}

type taskState struct {
	Tasks   IdentList[uint64]
	Files   Map[string, Value[int64]]
	Name    string
	Flags   []byte
	Control Ignored[control]
	Scratch int `kmc:"-"`
	hidden  int
}

func (s *taskState) Matches(o *taskState) bool { return MatchFields(s, o) }
func (s *taskState) Update(o *taskState)       { UpdateFields(s, o) }

type nested struct {
	Inner taskState
	Count Value[int]
}

func (n *nested) Matches(o *nested) bool { return MatchFields(n, o) }
func (n *nested) Update(o *nested)       { UpdateFields(n, o) }

type linked struct {
	Head  *nested
	Label string
}

func (l *linked) Matches(o *linked) bool { return MatchFields(l, o) }
func (l *linked) Update(o *linked)       { UpdateFields(l, o) }

func newTaskState(base uint64) *taskState {
	return &taskState{
		Tasks:   IdentsOf(base, base+1),
		Files:   MapOf(map[string]Value[int64]{"/etc/motd": Val(int64(12))}),
		Name:    "init",
		Flags:   []byte{1, 2},
		Control: Ignore(control{NextID: base + 2}),
	}
}

func TestMatchFields_RelabelsAndIgnores(t *testing.T) {
	model := newTaskState(0)
	target := newTaskState(100)

	assert.True(t, model.Matches(target))
}

func TestMatchFields_ScalarField(t *testing.T) {
	model := newTaskState(0)
	target := newTaskState(0)
	target.Name = "other"

	assert.False(t, model.Matches(target))
	assert.Equal(t, []string{"Name"}, FieldMismatches(model, target))
}

func TestMatchFields_SliceField(t *testing.T) {
	model := newTaskState(0)
	target := newTaskState(0)
	target.Flags = []byte{1, 3}

	assert.False(t, model.Matches(target))
}

func TestMatchFields_SkipsTaggedAndUnexported(t *testing.T) {
	model := newTaskState(0)
	target := newTaskState(0)
	target.Scratch = 5
	target.hidden = 6

	assert.True(t, model.Matches(target))
}

func TestUpdateFields_ReplaceSemantics(t *testing.T) {
	model := newTaskState(0)
	target := newTaskState(500)
	target.Tasks = IdentsOf[uint64](500, 501, 502)
	target.Files.Set("/tmp/x", Val(int64(3)))
	target.Name = "busy"

	model.Update(target)

	require.True(t, model.Matches(target))
	assert.Equal(t, uint64(2), model.Control.V.NextID, "ignored field keeps the model's value")
	assert.Equal(t, []uint64{500, 501, 502}, model.Tasks.IDs)

	target.Flags[0] = 9
	assert.Equal(t, byte(1), model.Flags[0], "raw slices are copied")
}

func TestUpdateFields_IgnoredIdempotence(t *testing.T) {
	model := newTaskState(0)
	before := model.Control

	for _, base := range []uint64{1, 50, 1000} {
		model.Update(newTaskState(base))
		assert.Equal(t, before, model.Control)
	}
}

func TestMatchFields_Nested(t *testing.T) {
	a := &nested{Inner: *newTaskState(0), Count: Val(1)}
	b := &nested{Inner: *newTaskState(7), Count: Val(1)}

	assert.True(t, a.Matches(b))

	b.Inner.Tasks = IdentsOf[uint64](7, 7)
	assert.False(t, a.Matches(b))

	a.Update(b)
	assert.True(t, a.Matches(b))
}

func TestMatchFields_PanicsOnMisuse(t *testing.T) {
	assert.Panics(t, func() { MatchFields(taskState{}, taskState{}) })
	assert.Panics(t, func() { MatchFields(&taskState{}, &nested{}) })
	assert.Panics(t, func() { UpdateFields(&taskState{}, (*taskState)(nil)) })
}

func TestMatchFields_StatePointer(t *testing.T) {
	tests := []struct {
		name string
		a, b *nested
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil against set", nil, &nested{Count: Val(1)}, false},
		{"set against nil", &nested{Count: Val(1)}, nil, false},
		{"distinct equal pointees", &nested{Inner: *newTaskState(0), Count: Val(1)}, &nested{Inner: *newTaskState(40), Count: Val(1)}, true},
		{"distinct unequal pointees", &nested{Count: Val(1)}, &nested{Count: Val(2)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &linked{Head: tt.a, Label: "l"}
			b := &linked{Head: tt.b, Label: "l"}

			assert.Equal(t, tt.want, a.Matches(b))
			if tt.want {
				assert.Empty(t, FieldMismatches(a, b))
			} else {
				assert.Equal(t, []string{"Head"}, FieldMismatches(a, b))
			}
		})
	}
}

func TestUpdateFields_StatePointerDoesNotAlias(t *testing.T) {
	tests := []struct {
		name string
		dst  *nested
	}{
		{"nil destination", nil},
		{"existing destination", &nested{Count: Val(9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &linked{Head: tt.dst}
			target := &linked{Head: &nested{Inner: *newTaskState(3), Count: Val(5)}, Label: "t"}

			model.Update(target)

			require.NotNil(t, model.Head)
			assert.NotSame(t, target.Head, model.Head)
			require.True(t, model.Matches(target))

			target.Head.Count.V = 6
			target.Head.Inner.Name = "changed"
			assert.Equal(t, 5, model.Head.Count.V)
			assert.Equal(t, "init", model.Head.Inner.Name)
			assert.False(t, model.Matches(target))
		})
	}
}

func TestUpdateFields_StatePointerSharedAndNil(t *testing.T) {
	shared := &nested{Count: Val(1)}
	model := &linked{Head: shared}
	target := &linked{Head: shared}

	model.Update(target)
	assert.NotSame(t, shared, model.Head, "a shared pointee is split")
	assert.Equal(t, 1, model.Head.Count.V)

	model.Update(&linked{})
	assert.Nil(t, model.Head)
}
