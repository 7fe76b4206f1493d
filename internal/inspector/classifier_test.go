package inspector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifier_Categories(t *testing.T) {
	e := newEnv(t, sample(), mixedWalls("IFCWALL"))
	c := NewClassifier(e.fragments)

	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"IFCDOOR", "IFCSLAB", "IFCWALL", "IFCWALLSTANDARDCASE", "IFCWINDOW"}, cats)
}

func TestClassifier_IsolateMatchesExactly(t *testing.T) {
	e := newEnv(t, sample())
	c := NewClassifier(e.fragments)
	ctx := context.Background()
	before := e.eng.FragmentsManager().Updates()

	require.NoError(t, c.Isolate(ctx, []string{"IFCWALL"}))
	require.Equal(t, []int{13, 14, 22, 23}, e.model(t, "sample").Hidden().Sorted())
	require.Greater(t, e.eng.FragmentsManager().Updates(), before)

	require.NoError(t, c.Isolate(ctx, []string{"IFCDOOR", "IFCWINDOW"}))
	require.Equal(t, []int{11, 12, 14, 21, 22}, e.model(t, "sample").Hidden().Sorted())
}

func TestClassifier_HideAndReset(t *testing.T) {
	e := newEnv(t, sample(), mixedWalls("IFCWALL"))
	c := NewClassifier(e.fragments)
	ctx := context.Background()

	require.NoError(t, c.Hide(ctx, []string{"IFCDOOR"}))
	require.Equal(t, []int{13}, e.model(t, "sample").Hidden().Sorted())
	require.Equal(t, []int{2}, e.model(t, "walls").Hidden().Sorted())

	require.NoError(t, c.Hide(ctx, nil))
	require.NoError(t, c.Reset(ctx))
	require.Empty(t, e.model(t, "sample").Hidden())
	require.Empty(t, e.model(t, "walls").Hidden())
}

func TestClassifier_IsolateNothingResets(t *testing.T) {
	e := newEnv(t, sample())
	c := NewClassifier(e.fragments)
	ctx := context.Background()

	require.NoError(t, c.Hide(ctx, []string{"IFCSLAB"}))
	require.NoError(t, c.Isolate(ctx, nil))
	require.Empty(t, e.model(t, "sample").Hidden())
}
