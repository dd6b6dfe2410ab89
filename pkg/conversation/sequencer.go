// Package conversation composes ordered, role-tagged message sequences for
// conversational AI APIs on top of pkg/blocks. A Sequencer accumulates
// system/user/assistant turns and renders them either as a flat message list
// or partitioned into a context stream plus conversational messages.
package conversation

import (
	"context"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"

	"github.com/go-go-golems/promptweave/pkg/blocks"
	"github.com/go-go-golems/promptweave/pkg/template"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one resolved turn in build output.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// AssistantInput is the partitioned output shape of BuildForAssistant:
// conversational messages plus the context stream derived from system turns
// and placeholders. An empty Context means no context was accumulated.
type AssistantInput struct {
	Messages []Message `json:"messages" yaml:"messages"`
	Context  string    `json:"context,omitempty" yaml:"context,omitempty"`
}

// turn is stored as appended and never mutated afterwards. content is either
// a pre-substituted string or a *blocks.Builder resolved at build time.
type turn struct {
	id          uuid.UUID
	role        Role
	content     any
	placeholder string
	metadata    map[string]any
}

// TurnView is the read-only view of a turn handed to filter predicates.
type TurnView struct {
	ID          uuid.UUID
	Role        Role
	Content     string
	Placeholder string
	Metadata    map[string]any
}

// Filter decides whether a turn is included in build output. A nil Filter
// accepts every turn. Panics inside a filter are not recovered.
type Filter func(TurnView) bool

// Sequencer accumulates turns in append order. It is not safe for concurrent
// use.
type Sequencer struct {
	args  blocks.Args
	turns []turn
}

type Option func(*Sequencer)

// WithArgs sets the sequencer's argument mapping, shared by reference with
// every builder-backed turn created through it.
func WithArgs(args map[string]any) Option {
	return func(s *Sequencer) {
		s.args = blocks.Args(args)
	}
}

func NewSequencer(options ...Option) *Sequencer {
	ret := &Sequencer{}
	for _, option := range options {
		option(ret)
	}
	return ret
}

type messageOptions struct {
	placeholder string
	metadata    map[string]any
}

type MessageOption func(*messageOptions)

// WithPlaceholder sets the text shown in the context stream in place of the
// turn's real content by BuildForAssistant.
func WithPlaceholder(placeholder string) MessageOption {
	return func(o *messageOptions) {
		o.placeholder = placeholder
	}
}

// WithMetadata attaches caller-defined fields to the turn, available to
// filter predicates. The map is deep-cloned at append time so the stored
// turn stays immutable.
func WithMetadata(metadata map[string]any) MessageOption {
	return func(o *messageOptions) {
		o.metadata = metadata
	}
}

// SystemMessage appends a system turn. The input may be a scalar (template
// substitution happens now, with the sequencer's mapping), a
// *blocks.Builder (rendered at build time), or a blocks.BuildFunc invoked
// immediately with a fresh child builder inheriting the sequencer's mapping.
func (s *Sequencer) SystemMessage(v any, options ...MessageOption) error {
	return s.appendTurn(RoleSystem, v, "SystemMessage", options)
}

// UserMessage appends a user turn. See SystemMessage for input handling.
func (s *Sequencer) UserMessage(v any, options ...MessageOption) error {
	return s.appendTurn(RoleUser, v, "UserMessage", options)
}

// AssistantMessage appends an assistant turn. See SystemMessage for input
// handling.
func (s *Sequencer) AssistantMessage(v any, options ...MessageOption) error {
	return s.appendTurn(RoleAssistant, v, "AssistantMessage", options)
}

// SystemMessageAsync appends a system turn whose content is built by fn
// against a fresh child builder; the turn is appended only once fn returns
// without error.
func (s *Sequencer) SystemMessageAsync(ctx context.Context, fn blocks.AsyncBuildFunc, options ...MessageOption) error {
	return s.appendTurnAsync(ctx, RoleSystem, fn, options)
}

// UserMessageAsync is the asynchronous counterpart of UserMessage.
func (s *Sequencer) UserMessageAsync(ctx context.Context, fn blocks.AsyncBuildFunc, options ...MessageOption) error {
	return s.appendTurnAsync(ctx, RoleUser, fn, options)
}

// AssistantMessageAsync is the asynchronous counterpart of AssistantMessage.
func (s *Sequencer) AssistantMessageAsync(ctx context.Context, fn blocks.AsyncBuildFunc, options ...MessageOption) error {
	return s.appendTurnAsync(ctx, RoleAssistant, fn, options)
}

// Turns returns the number of appended turns.
func (s *Sequencer) Turns() int {
	return len(s.turns)
}

func (s *Sequencer) appendTurn(role Role, v any, method string, options []MessageOption) error {
	var content any
	switch x := v.(type) {
	case *blocks.Builder:
		if x == nil {
			return blocks.ErrUnsupportedValue
		}
		content = x
	case blocks.BuildFunc:
		content = s.buildChild(x)
	case func(*blocks.Builder):
		content = s.buildChild(x)
	case blocks.AsyncBuildFunc:
		return errors.Errorf("%s received an asynchronous callback; use %sAsync instead", method, method)
	case func(context.Context, *blocks.Builder) error:
		return errors.Errorf("%s received an asynchronous callback; use %sAsync instead", method, method)
	default:
		if !isScalarish(v) {
			return blocks.ErrUnsupportedValue
		}
		content = template.Substitute(template.Stringify(v), s.args)
	}
	s.turns = append(s.turns, s.newTurn(role, content, options))
	return nil
}

func (s *Sequencer) appendTurnAsync(ctx context.Context, role Role, fn blocks.AsyncBuildFunc, options []MessageOption) error {
	child := blocks.New(blocks.WithArgs(s.args))
	if err := fn(ctx, child); err != nil {
		return errors.Wrap(err, "async builder callback failed")
	}
	s.turns = append(s.turns, s.newTurn(role, child, options))
	return nil
}

func (s *Sequencer) newTurn(role Role, content any, options []MessageOption) turn {
	opts := &messageOptions{}
	for _, option := range options {
		option(opts)
	}
	var metadata map[string]any
	if opts.metadata != nil {
		metadata = clone.Clone(opts.metadata).(map[string]any)
	}
	return turn{
		id:          uuid.New(),
		role:        role,
		content:     content,
		placeholder: opts.placeholder,
		metadata:    metadata,
	}
}

func (s *Sequencer) buildChild(fn func(*blocks.Builder)) *blocks.Builder {
	child := blocks.New(blocks.WithArgs(s.args))
	fn(child)
	return child
}

// resolveContent renders builder-backed content with the sequencer's mapping
// merged under the builder's own (builder keys win). Scalar content was
// already substituted at append time.
func (s *Sequencer) resolveContent(t turn) string {
	switch c := t.content.(type) {
	case *blocks.Builder:
		return c.BuildWithArgs(s.args)
	case string:
		return c
	default:
		return template.Stringify(c)
	}
}

// Build returns the ordered turns surviving the filter as flat
// {role, content} messages. Metadata and placeholders are not part of this
// shape.
func (s *Sequencer) Build(filter Filter) []Message {
	messages := make([]Message, 0, len(s.turns))
	for _, t := range s.turns {
		content := s.resolveContent(t)
		if filter != nil && !filter(s.view(t, content)) {
			continue
		}
		messages = append(messages, Message{Role: t.role, Content: content})
	}
	return messages
}

// BuildForAssistant partitions the surviving turns: system turns feed the
// context stream, all other turns become messages. A non-system turn with a
// placeholder also contributes the placeholder text to the context stream,
// interleaved at the position the turn occupies among the system turns.
func (s *Sequencer) BuildForAssistant(filter Filter) AssistantInput {
	contextParts := []string{}
	messages := []Message{}
	for _, t := range s.turns {
		content := s.resolveContent(t)
		if filter != nil && !filter(s.view(t, content)) {
			continue
		}
		if t.role == RoleSystem {
			contextParts = append(contextParts, content)
			continue
		}
		messages = append(messages, Message{Role: t.role, Content: content})
		if t.placeholder != "" {
			contextParts = append(contextParts, t.placeholder)
		}
	}
	ret := AssistantInput{Messages: messages}
	if len(contextParts) > 0 {
		ret.Context = strings.Join(contextParts, "\n")
	}
	return ret
}

func (s *Sequencer) view(t turn, content string) TurnView {
	return TurnView{
		ID:          t.id,
		Role:        t.role,
		Content:     content,
		Placeholder: t.placeholder,
		Metadata:    t.metadata,
	}
}

func isScalarish(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Chan, reflect.Func:
		return false
	default:
		return true
	}
}
