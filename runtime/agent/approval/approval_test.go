package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-ai/runtime/agent/approval"
)

func TestChannelHandler_AllowRoundTrip(t *testing.T) {
	h := approval.NewChannelHandler(4)

	done := make(chan approval.Action, 1)
	go func() {
		action, err := h.RequestApproval(context.Background(), "req-1", approval.Request{
			SessionID: "s1",
			Type:      approval.ToolCallType("developer__shell", "run ls"),
		})
		require.NoError(t, err)
		done <- action
	}()

	select {
	case pr := <-h.Pending():
		assert.Equal(t, "req-1", pr.CorrelationID())
		require.NoError(t, h.Resolve(pr.CorrelationID(), approval.ActionAllow))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending request")
	}

	select {
	case action := <-done:
		assert.True(t, action.IsApproved())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution")
	}
}

func TestChannelHandler_ContextCancelYieldsCancelled(t *testing.T) {
	h := approval.NewChannelHandler(4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan approval.Action, 1)
	go func() {
		action, err := h.RequestApproval(ctx, "req-2", approval.Request{SessionID: "s1"})
		require.NoError(t, err)
		done <- action
	}()

	// Drain the pending request so RequestApproval moves to waiting on the
	// response channel before we cancel.
	<-h.Pending()
	cancel()

	select {
	case action := <-done:
		assert.Equal(t, approval.ActionCancelled, action)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestChannelHandler_ResolveUnknownErrors(t *testing.T) {
	h := approval.NewChannelHandler(4)
	err := h.Resolve("missing", approval.ActionAllow)
	assert.Error(t, err)
}
