package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelrelay/internal/domain"
)

func TestChatStreamReassemblesContent(t *testing.T) {
	content := "the quick brown fox jumps over the lazy dog again and again"
	c, _ := newTestClient(t, chatOKHandler(t, content))

	ch, err := c.ChatStream(context.Background(), "m",
		[]domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		domain.CallMeta{Agent: domain.AgentWriting},
	)
	require.NoError(t, err)

	var sb strings.Builder
	var final *domain.StreamDelta
	chunks := 0
	for delta := range ch {
		if delta.Done {
			d := delta
			final = &d
			continue
		}
		sb.WriteString(delta.Content)
		chunks++
	}

	assert.Equal(t, content, sb.String())
	assert.Greater(t, chunks, 1, "content should arrive in multiple chunks")
	require.NotNil(t, final, "stream must end with a done delta")
	require.NotNil(t, final.Metadata)
	assert.Equal(t, 42, final.Metadata.TokenCount)
}

func TestChatStreamPropagatesCallErrors(t *testing.T) {
	c, _ := newTestClient(t, statusHandler(429, "quota"))

	_, err := c.ChatStream(context.Background(), "m",
		[]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, domain.CallMeta{})

	require.Error(t, err)
	assert.Equal(t, domain.CodeQuota, domain.CodeOf(err))
}

func TestChatStreamCancellation(t *testing.T) {
	// Long content so the stream is still in flight when we cancel.
	content := strings.Repeat("word ", 400)
	c, _ := newTestClient(t, chatOKHandler(t, content))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.ChatStream(ctx, "m",
		[]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, domain.CallMeta{})
	require.NoError(t, err)

	// Read one chunk, then cancel mid-stream.
	<-ch
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed without delivering the full stream
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancellation")
		}
	}
}
