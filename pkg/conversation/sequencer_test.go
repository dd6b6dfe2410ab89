package conversation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/promptweave/pkg/blocks"
)

func TestBuildPreservesAppendOrder(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.SystemMessage("s"))
	require.NoError(t, seq.UserMessage("u"))
	require.NoError(t, seq.AssistantMessage("a"))

	msgs := seq.Build(nil)
	require.Equal(t, []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	}, msgs)
}

func TestScalarContentSubstitutedAtAppendTime(t *testing.T) {
	args := map[string]any{"name": "Ada"}
	seq := NewSequencer(WithArgs(args))
	require.NoError(t, seq.UserMessage("Hello {{name}}"))

	// scalar turns capture the substitution result when appended
	args["name"] = "Grace"
	msgs := seq.Build(nil)
	require.Equal(t, "Hello Ada", msgs[0].Content)
}

func TestBuilderContentResolvedAtBuildTime(t *testing.T) {
	args := map[string]any{"name": "Ada"}
	seq := NewSequencer(WithArgs(args))
	require.NoError(t, seq.UserMessage(func(b *blocks.Builder) {
		_ = b.Add("Hello {{name}}")
	}))

	args["name"] = "Grace"
	msgs := seq.Build(nil)
	require.Equal(t, "Hello Grace", msgs[0].Content)
}

func TestBuilderContentChildArgsWin(t *testing.T) {
	seq := NewSequencer(WithArgs(map[string]any{"name": "Ada"}))
	child := blocks.New(blocks.WithArgs(blocks.Args{"name": "Grace"}))
	require.NoError(t, child.Add("hi {{name}}"))
	require.NoError(t, seq.UserMessage(child))

	msgs := seq.Build(nil)
	require.Equal(t, "hi Grace", msgs[0].Content)
}

func TestBuildForAssistantRoundTrip(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.SystemMessage("Setup"))
	require.NoError(t, seq.UserMessage("Q", WithPlaceholder("<q>")))

	out := seq.BuildForAssistant(nil)
	require.Equal(t, "Setup\n<q>", out.Context)
	require.Equal(t, []Message{{Role: RoleUser, Content: "Q"}}, out.Messages)
}

func TestBuildForAssistantWithoutSystemTurns(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.UserMessage("Q"))

	out := seq.BuildForAssistant(nil)
	require.Empty(t, out.Context)
	require.Len(t, out.Messages, 1)
}

func TestFilterExcludesSystemTurnFromContext(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.SystemMessage("Setup"))
	require.NoError(t, seq.UserMessage("Q", WithPlaceholder("<q>")))

	out := seq.BuildForAssistant(func(t TurnView) bool {
		return t.Role != RoleSystem
	})
	require.Equal(t, "<q>", out.Context)
	require.Len(t, out.Messages, 1)
}

func TestFilteredOutPlaceholderContributesNothing(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.SystemMessage("Setup"))
	require.NoError(t, seq.UserMessage("Q", WithPlaceholder("<q>")))

	out := seq.BuildForAssistant(func(t TurnView) bool {
		return t.Role == RoleSystem
	})
	require.Equal(t, "Setup", out.Context)
	require.Empty(t, out.Messages)
}

func TestFilterSeesMetadata(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.UserMessage("visible"))
	require.NoError(t, seq.UserMessage("hidden", WithMetadata(map[string]any{"hidden": true})))

	msgs := seq.Build(func(t TurnView) bool {
		hidden, _ := t.Metadata["hidden"].(bool)
		return !hidden
	})
	require.Equal(t, []Message{{Role: RoleUser, Content: "visible"}}, msgs)
}

func TestMetadataClonedAtAppend(t *testing.T) {
	metadata := map[string]any{"tag": "original"}
	seq := NewSequencer()
	require.NoError(t, seq.UserMessage("Q", WithMetadata(metadata)))

	metadata["tag"] = "mutated"

	var seen string
	seq.Build(func(t TurnView) bool {
		seen, _ = t.Metadata["tag"].(string)
		return true
	})
	require.Equal(t, "original", seen)
}

func TestSyncMessageRejectsAsyncCallback(t *testing.T) {
	seq := NewSequencer()
	err := seq.UserMessage(func(_ context.Context, _ *blocks.Builder) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserMessageAsync")
	require.Equal(t, 0, seq.Turns())
}

func TestSystemMessageRejectsAsyncCallback(t *testing.T) {
	seq := NewSequencer()
	err := seq.SystemMessage(func(_ context.Context, _ *blocks.Builder) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SystemMessageAsync")
}

func TestMessageRejectsNilBuilder(t *testing.T) {
	seq := NewSequencer()
	err := seq.UserMessage((*blocks.Builder)(nil))
	require.ErrorIs(t, err, blocks.ErrUnsupportedValue)
	require.Equal(t, 0, seq.Turns())
}

func TestMessageRejectsChannel(t *testing.T) {
	seq := NewSequencer()
	err := seq.UserMessage(make(chan int))
	require.ErrorIs(t, err, blocks.ErrUnsupportedValue)
}

func TestUserMessageAsync(t *testing.T) {
	seq := NewSequencer(WithArgs(map[string]any{"name": "Ada"}))
	err := seq.UserMessageAsync(context.Background(), func(_ context.Context, b *blocks.Builder) error {
		return b.Add("hi {{name}}")
	})
	require.NoError(t, err)

	msgs := seq.Build(nil)
	require.Equal(t, []Message{{Role: RoleUser, Content: "hi Ada"}}, msgs)
}

func TestMessageAsyncErrorAppendsNothing(t *testing.T) {
	seq := NewSequencer()
	err := seq.SystemMessageAsync(context.Background(), func(_ context.Context, _ *blocks.Builder) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 0, seq.Turns())
}

func TestTurnViewCarriesStableID(t *testing.T) {
	seq := NewSequencer()
	require.NoError(t, seq.UserMessage("Q"))

	var first, second string
	seq.Build(func(t TurnView) bool {
		first = t.ID.String()
		return true
	})
	seq.Build(func(t TurnView) bool {
		second = t.ID.String()
		return true
	})
	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}
