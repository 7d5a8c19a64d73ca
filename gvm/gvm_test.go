package gvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndEvalS2Scenario(t *testing.T) {
	eq := Equation{Recv: "hops < 2", Send: "true", Xtnd: "true", Save: "false"}
	c, err := eq.Compile()
	require.NoError(t, err)

	r0, err := c.Eval(Env{"hops": 0})
	require.NoError(t, err)
	assert.Equal(t, Result{Recv: true, Send: true, Xtnd: true, Save: false}, r0)

	r2, err := c.Eval(Env{"hops": 2})
	require.NoError(t, err)
	assert.False(t, r2.Recv)
}

func TestMalformedExpressionFailsAtCompile(t *testing.T) {
	eq := Equation{Recv: "hops <", Send: "true", Xtnd: "true", Save: "false"}
	_, err := eq.Compile()
	require.Error(t, err)
}

func TestLogicalOperators(t *testing.T) {
	eq := Equation{
		Recv: "hops <= 3 && n_children > 0",
		Send: "!(hops == 0)",
		Xtnd: "hops >= 1 || n_children != 0",
		Save: "false",
	}
	c, err := eq.Compile()
	require.NoError(t, err)
	r, err := c.Eval(Env{"hops": 1, "n_children": 2})
	require.NoError(t, err)
	assert.True(t, r.Recv)
	assert.True(t, r.Send)
	assert.True(t, r.Xtnd)
}

func TestUnknownIdentifierErrorsAtEval(t *testing.T) {
	eq := Equation{Recv: "ghost == 1", Send: "true", Xtnd: "true", Save: "false"}
	c, err := eq.Compile()
	require.NoError(t, err)
	_, err = c.Eval(Env{})
	require.Error(t, err)
}
