package order

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestExport(t *testing.T) {
	t.Parallel()

	decls := []Declaration{
		{Name: "X", Target: "TX"},
		{Name: "Y", Target: "TY", Args: []TypeID{"TX"}},
		{Name: "Z", Target: "TZ", Args: []TypeID{"TY"}},
	}
	result, err := quietSorter().Sort(decls, chainTypes(), nil)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "chain.dot", []byte(result.DOT()))
	g.Assert(t, "chain.mermaid", []byte(result.Mermaid()))
}
