// Package blocks assembles hierarchical, indentable text blocks: ordered
// sequences of scalar values and nested child builders, rendered to a single
// string with {{name}} template substitution and per-level indentation.
package blocks

import (
	"context"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/promptweave/pkg/template"
)

// DefaultIndent is the indentation used by builders constructed without an
// explicit WithIndent option.
const DefaultIndent = "  "

// ErrUnsupportedValue is returned when a value is neither a scalar, a
// *Builder, nor a builder callback — typically a channel or a function with
// an unrecognized signature.
var ErrUnsupportedValue = errors.New("unsupported value: expected a scalar, a *Builder, or a builder callback")

// Args maps template variable names to their values. Builders hold the map
// they are given by reference; the merge with a parent's mapping is
// recomputed on every render, so later mutation of either map is observed.
type Args map[string]any

// BuildFunc populates a freshly created child builder. It is invoked
// synchronously and must not block on external work; use AsyncBuildFunc for
// that.
type BuildFunc func(*Builder)

// AsyncBuildFunc populates a freshly created child builder and may perform
// blocking work. The child is only appended once the callback returns
// without error.
type AsyncBuildFunc func(context.Context, *Builder) error

type partKind int

const (
	// partScalar is template-substituted at render time.
	partScalar partKind = iota
	// partLiteral is emitted verbatim (pre-rendered content).
	partLiteral
	// partChild renders recursively, indented.
	partChild
)

type part struct {
	kind  partKind
	value any
	child *Builder
}

// Builder holds an ordered, append-only sequence of parts. It is not safe
// for concurrent use; callers sharing a builder across goroutines must
// serialize access externally.
type Builder struct {
	parts  []part
	args   Args
	indent string
}

type Option func(*Builder)

// WithIndent sets this builder's indentation string, overriding
// DefaultIndent.
func WithIndent(indent string) Option {
	return func(b *Builder) {
		b.indent = indent
	}
}

// WithArgs sets the builder's argument mapping. The map is held by
// reference.
func WithArgs(args Args) Option {
	return func(b *Builder) {
		b.args = args
	}
}

func New(options ...Option) *Builder {
	ret := &Builder{
		indent: DefaultIndent,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// newChild creates a builder that inherits this builder's argument mapping
// (by reference, not a copy) and indentation.
func (b *Builder) newChild() *Builder {
	return &Builder{
		args:   b.args,
		indent: b.indent,
	}
}

// Add appends a part. The value may be a scalar (substituted at render
// time), an existing *Builder, or a BuildFunc which is invoked immediately
// with a fresh child builder. Passing an AsyncBuildFunc is an error; use
// AddAsync.
func (b *Builder) Add(v any) error {
	switch x := v.(type) {
	case *Builder:
		if x == nil {
			return ErrUnsupportedValue
		}
		b.parts = append(b.parts, part{kind: partChild, child: x})
		return nil
	case BuildFunc:
		return b.addSync(x)
	case func(*Builder):
		return b.addSync(x)
	case AsyncBuildFunc:
		return errAsyncCallback("Add", "AddAsync")
	case func(context.Context, *Builder) error:
		return errAsyncCallback("Add", "AddAsync")
	default:
		if !isScalarish(v) {
			return ErrUnsupportedValue
		}
		b.parts = append(b.parts, part{kind: partScalar, value: v})
		return nil
	}
}

// AddAsync invokes fn with a fresh child builder, waiting for it to
// complete, and appends the child afterwards. On error nothing is appended.
//
// Concurrent AddAsync calls on the same builder are not coordinated:
// completion order determines append order, and the builder itself is not
// goroutine-safe. Use AddAsyncAll when deterministic ordering across
// concurrent callbacks is needed.
func (b *Builder) AddAsync(ctx context.Context, fn AsyncBuildFunc) error {
	child := b.newChild()
	if err := fn(ctx, child); err != nil {
		return errors.Wrap(err, "async builder callback failed")
	}
	b.parts = append(b.parts, part{kind: partChild, child: child})
	return nil
}

// AddAsyncAll runs all callbacks concurrently, each against its own fresh
// child builder, then appends the children in argument order. If any
// callback fails, no child is appended.
func (b *Builder) AddAsyncAll(ctx context.Context, fns ...AsyncBuildFunc) error {
	children := make([]*Builder, len(fns))
	eg, ctx := errgroup.WithContext(ctx)
	for i, fn := range fns {
		i, fn := i, fn
		children[i] = b.newChild()
		eg.Go(func() error {
			return fn(ctx, children[i])
		})
	}
	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "async builder callback failed")
	}
	for _, child := range children {
		b.parts = append(b.parts, part{kind: partChild, child: child})
	}
	return nil
}

// AddKv appends a "key: value" entry. For a scalar value the pair becomes a
// single line. For a *Builder or BuildFunc value, a bare "key:" line is
// appended followed by the child as a nested part, so its content renders on
// subsequent, indented lines.
func (b *Builder) AddKv(key string, v any) error {
	switch x := v.(type) {
	case *Builder:
		if x == nil {
			return ErrUnsupportedValue
		}
		b.parts = append(b.parts,
			part{kind: partScalar, value: key + ":"},
			part{kind: partChild, child: x})
		return nil
	case BuildFunc:
		return b.addKvSync(key, x)
	case func(*Builder):
		return b.addKvSync(key, x)
	case AsyncBuildFunc:
		return errAsyncCallback("AddKv", "AddKvAsync")
	case func(context.Context, *Builder) error:
		return errAsyncCallback("AddKv", "AddKvAsync")
	default:
		if !isScalarish(v) {
			return ErrUnsupportedValue
		}
		b.parts = append(b.parts, part{kind: partScalar, value: key + ": " + template.Stringify(v)})
		return nil
	}
}

// AddKvAsync invokes fn with a fresh child builder, then appends a single
// combined "key: <rendered child>" line. Unlike AddKv with a callback, the
// child is rendered to a string here and now rather than kept as a nested
// part, so its content is not re-indented or re-substituted at build time:
// any {{name}} marker left unresolved in the pre-rendered child stays frozen
// verbatim even if the argument mapping gains the key before Build.
func (b *Builder) AddKvAsync(ctx context.Context, key string, fn AsyncBuildFunc) error {
	child := b.newChild()
	if err := fn(ctx, child); err != nil {
		return errors.Wrap(err, "async builder callback failed")
	}
	rendered := child.render(b.args, false, "")
	b.parts = append(b.parts, part{kind: partLiteral, value: key + ": " + rendered})
	return nil
}

func (b *Builder) addSync(fn func(*Builder)) error {
	child := b.newChild()
	fn(child)
	b.parts = append(b.parts, part{kind: partChild, child: child})
	return nil
}

func (b *Builder) addKvSync(key string, fn func(*Builder)) error {
	child := b.newChild()
	fn(child)
	b.parts = append(b.parts,
		part{kind: partScalar, value: key + ":"},
		part{kind: partChild, child: child})
	return nil
}

// Len returns the number of appended parts.
func (b *Builder) Len() int {
	return len(b.parts)
}

// Args returns the builder's argument mapping.
func (b *Builder) Args() Args {
	return b.args
}

// Build renders all parts in append order, joined by newlines. The top level
// is never indented; every nested child has each line of its output prefixed
// with that child's indentation, once per nesting depth.
func (b *Builder) Build() string {
	return b.render(nil, false, "")
}

// BuildWithIndent renders like Build but overrides the indentation string
// for this builder and all its descendants, for this render only. The empty
// string means "no override" and is equivalent to Build; an all-whitespace
// or marker string must be non-empty to take effect.
func (b *Builder) BuildWithIndent(indent string) string {
	return b.render(nil, false, indent)
}

// BuildWithArgs renders like Build with an inherited argument mapping merged
// under this builder's own mapping (this builder's keys win on conflict).
// Neither mapping is mutated; the merge is recomputed on every call.
func (b *Builder) BuildWithArgs(inherited Args) string {
	return b.render(inherited, false, "")
}

func (b *Builder) String() string {
	return b.Build()
}

func (b *Builder) render(inherited Args, withIndent bool, override string) string {
	args := mergeArgs(inherited, b.args)
	lines := make([]string, 0, len(b.parts))
	for _, p := range b.parts {
		switch p.kind {
		case partScalar:
			lines = append(lines, template.Substitute(template.Stringify(p.value), args))
		case partLiteral:
			lines = append(lines, p.value.(string))
		case partChild:
			lines = append(lines, p.child.render(args, true, override))
		}
	}
	out := strings.Join(lines, "\n")
	if withIndent {
		indent := b.indent
		if override != "" {
			indent = override
		}
		out = indentLines(out, indent)
	}
	return out
}

// mergeArgs resolves the effective mapping for a render: inherited keys
// first, own keys layered on top. Neither input map is mutated.
func mergeArgs(inherited Args, own Args) Args {
	if len(inherited) == 0 {
		return own
	}
	if len(own) == 0 {
		return inherited
	}
	merged := make(Args, len(inherited)+len(own))
	for k, v := range inherited {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

func indentLines(s string, indent string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// isScalarish reports whether v can be stored as a scalar part. Channels are
// rejected as raw deferred values, and functions with signatures other than
// the recognized callback forms are rejected as well.
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

func errAsyncCallback(method string, asyncMethod string) error {
	return errors.Errorf("%s received an asynchronous callback; use %s instead", method, asyncMethod)
}
