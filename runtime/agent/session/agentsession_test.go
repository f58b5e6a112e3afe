package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-ai/runtime/agent/session"
)

func TestManager_CreateIsIdempotent(t *testing.T) {
	m := session.NewManager()
	a := m.Create("s1", "/tmp", session.KindUser)
	b := m.Create("s1", "/other", session.KindUser)
	assert.Same(t, a, b)
	assert.Equal(t, "/tmp", b.WorkingDir())
}

func TestManager_GetUnknownErrors(t *testing.T) {
	m := session.NewManager()
	_, err := m.Get("missing")
	require.Error(t, err)
	assert.True(t, session.IsNotFound(err))
}

func TestAgentSession_TokensAccumulate(t *testing.T) {
	s := session.NewAgentSession("s1", "/tmp", session.KindSubAgent)
	s.AddTokens(10, 20)
	s.AddTokens(5, 5)
	tok := s.Tokens()
	assert.Equal(t, 15, tok.Input)
	assert.Equal(t, 25, tok.Output)
	assert.Equal(t, 40, tok.Total)
}

func TestAgentSession_ExtensionData(t *testing.T) {
	s := session.NewAgentSession("s1", "/tmp", session.KindUser)
	_, ok := s.ExtensionData("k")
	assert.False(t, ok)

	s.SetExtensionData("k", 42)
	v, ok := s.ExtensionData("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestAgentSession_PatchAppliesAtomically(t *testing.T) {
	s := session.NewAgentSession("s1", "/tmp", session.KindUser)
	s.Patch().WorkingDir("/new").ExtensionData("x", "y").Apply()
	assert.Equal(t, "/new", s.WorkingDir())
	v, ok := s.ExtensionData("x")
	require.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestManager_Remove(t *testing.T) {
	m := session.NewManager()
	m.Create("s1", "/tmp", session.KindUser)
	m.Remove("s1")
	_, err := m.Get("s1")
	assert.Error(t, err)
}
