package conversation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-ai/runtime/agent/conversation"
)

func TestValidate_PairedRequestResponse(t *testing.T) {
	c := conversation.New()
	now := time.Unix(0, 0)
	c.Append(conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.ToolRequest("1", "developer__echo", map[string]any{"msg": "hi"})))
	c.Append(conversation.NewMessage(conversation.RoleUser, now,
		conversation.ToolResponseOK("1", []conversation.Content{conversation.Text("hi")})))

	require.NoError(t, c.Validate())
	assert.Empty(t, c.PendingToolRequestIDs())
}

func TestValidate_UnmatchedResponse(t *testing.T) {
	c := conversation.New()
	now := time.Unix(0, 0)
	c.Append(conversation.NewMessage(conversation.RoleUser, now,
		conversation.ToolResponseOK("1", nil)))
	assert.Error(t, c.Validate())
}

func TestValidate_DuplicateRequest(t *testing.T) {
	c := conversation.New()
	now := time.Unix(0, 0)
	c.Append(conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.ToolRequest("1", "a", nil)))
	c.Append(conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.ToolRequest("1", "b", nil)))
	assert.Error(t, c.Validate())
}

func TestPendingToolRequestIDs(t *testing.T) {
	c := conversation.New()
	now := time.Unix(0, 0)
	c.Append(conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.ToolRequest("1", "a", nil),
		conversation.ToolRequest("2", "b", nil)))
	c.Append(conversation.NewMessage(conversation.RoleUser, now,
		conversation.ToolResponseOK("1", nil)))

	assert.Equal(t, []string{"2"}, c.PendingToolRequestIDs())
}

func TestNewUnvalidated_AllowsTrailingRequest(t *testing.T) {
	now := time.Unix(0, 0)
	msgs := []conversation.Message{
		conversation.NewMessage(conversation.RoleAssistant, now,
			conversation.ToolRequest("1", "a", nil)),
	}
	c := conversation.NewUnvalidated(msgs)
	assert.Equal(t, []string{"1"}, c.PendingToolRequestIDs())
}

func TestMessage_LastText(t *testing.T) {
	now := time.Unix(0, 0)
	m := conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.Text("first"), conversation.ToolRequest("1", "a", nil), conversation.Text("last"))
	text, ok := m.LastText()
	require.True(t, ok)
	assert.Equal(t, "last", text)
}

func TestMessage_ToolRequests(t *testing.T) {
	now := time.Unix(0, 0)
	m := conversation.NewMessage(conversation.RoleAssistant, now,
		conversation.Text("hi"),
		conversation.ToolRequest("1", "a", nil),
		conversation.ToolRequest("2", "b", nil))
	reqs := m.ToolRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "a", reqs[0].Name)
	assert.Equal(t, "b", reqs[1].Name)
}

func TestConversation_Clone(t *testing.T) {
	c := conversation.New()
	now := time.Unix(0, 0)
	c.Append(conversation.NewMessage(conversation.RoleUser, now, conversation.Text("hi")))
	clone := c.Clone()
	clone.Append(conversation.NewMessage(conversation.RoleUser, now, conversation.Text("bye")))
	assert.Len(t, c.Messages(), 1)
	assert.Len(t, clone.Messages(), 2)
}
