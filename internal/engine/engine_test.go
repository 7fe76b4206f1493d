package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/spatialtree"
)

func TestSignal_OrderAndRemove(t *testing.T) {
	var s Signal[int]
	var got []string

	removeA := s.Add(func(v int) { got = append(got, "a") })
	s.Add(func(v int) { got = append(got, "b") })

	s.Trigger(1)
	removeA()
	removeA()
	s.Trigger(2)

	require.Equal(t, []string{"a", "b", "b"}, got)
	require.Equal(t, 1, s.Len())
}

func TestSignal_HandlerMayRemoveItself(t *testing.T) {
	var s Signal[struct{}]
	calls := 0
	var remove func()
	remove = s.Add(func(struct{}) {
		calls++
		remove()
	})

	s.Trigger(struct{}{})
	s.Trigger(struct{}{})
	require.Equal(t, 1, calls)
}

func TestBox_BoundingSphere(t *testing.T) {
	b := BoxOf(Vec3{0, 0, 0}, Vec3{2, 0, 0}, Vec3{0, 0, 2})
	s := b.BoundingSphere()
	require.Equal(t, Vec3{1, 0, 1}, s.Center)
	require.InDelta(t, 1.4142135, s.Radius, 1e-6)

	require.True(t, BoxOf().Empty())
}

func TestModelIDMap_Count(t *testing.T) {
	m := ModelIDMap{
		"a": spatialtree.NewIDSet(1, 2),
		"b": spatialtree.NewIDSet(3),
	}
	require.Equal(t, 3, m.Count())
}
