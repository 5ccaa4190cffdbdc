package hub

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/trace"
)

func TestTransactionOnScope(t *testing.T) {
	scope := NewScope()
	tx := trace.NewTransaction(trace.TransactionOptions{Name: "dogpark", SampleRate: 1})

	scope.SetSpan(&tx.Span)

	require.NotNil(t, scope.Transaction())
	assert.Same(t, tx, scope.Transaction())
	assert.Equal(t, "dogpark", scope.Transaction().Name)
	assert.Same(t, &tx.Span, scope.Span())
}

func TestTransactionFoundThroughDescendantSpan(t *testing.T) {
	scope := NewScope()
	tx := trace.NewTransaction(trace.TransactionOptions{Name: "dogpark", SampleRate: 1})
	child := tx.StartChild("sniffing")

	scope.SetSpan(child)

	require.NotNil(t, scope.Transaction())
	assert.Same(t, tx, scope.Transaction())
	// The active span stays the child; resolution never rewrites it.
	assert.Same(t, child, scope.Span())
	assert.Equal(t, "sniffing", scope.Span().Op)
}

func TestOrphanSpanHasNoTransaction(t *testing.T) {
	scope := NewScope()
	span := trace.NewSpan("sniffing")

	scope.SetSpan(span)

	assert.Nil(t, scope.Transaction())
	assert.Same(t, span, scope.Span())
}

func TestEmptyScope(t *testing.T) {
	scope := NewScope()

	assert.Nil(t, scope.Span())
	assert.Nil(t, scope.Transaction())
}

func TestBreadcrumbRing(t *testing.T) {
	scope := NewScope()
	scope.SetMaxBreadcrumbs(3)

	for i := 0; i < 5; i++ {
		scope.AddBreadcrumb(&protocol.Breadcrumb{Message: fmt.Sprintf("crumb%d", i)})
	}

	event := &protocol.Event{}
	scope.ApplyToEvent(event)

	require.Len(t, event.Breadcrumbs, 3)
	assert.Equal(t, "crumb2", event.Breadcrumbs[0].Message)
	assert.Equal(t, "crumb4", event.Breadcrumbs[2].Message)
}

func TestApplyToEventTags(t *testing.T) {
	scope := NewScope()
	scope.SetTag("region", "eu")
	scope.SetTag("color", "scope-wins-not")

	event := &protocol.Event{Tags: map[string]string{"color": "event-wins"}}
	scope.ApplyToEvent(event)

	assert.Equal(t, "eu", event.Tags["region"])
	assert.Equal(t, "event-wins", event.Tags["color"])
}

func TestApplyToEventLinksTrace(t *testing.T) {
	scope := NewScope()
	tx := trace.NewTransaction(trace.TransactionOptions{Name: "linked", SampleRate: 1})
	scope.SetSpan(&tx.Span)

	event := &protocol.Event{Message: "boom"}
	scope.ApplyToEvent(event)

	require.Contains(t, event.Contexts, "trace")
	assert.Equal(t, tx.TraceID.String(), event.Contexts["trace"]["trace_id"])
}

func TestCloneIsIndependent(t *testing.T) {
	scope := NewScope()
	scope.SetTag("shared", "yes")
	scope.AddBreadcrumb(&protocol.Breadcrumb{Message: "before fork"})
	span := trace.NewSpan("op")
	scope.SetSpan(span)

	clone := scope.Clone()

	// The clone starts with identical state.
	assert.Same(t, span, clone.Span())

	// Mutating the clone must never affect the parent.
	clone.SetTag("shared", "no")
	clone.SetSpan(nil)
	clone.AddBreadcrumb(&protocol.Breadcrumb{Message: "child only"})

	event := &protocol.Event{}
	scope.ApplyToEvent(event)
	assert.Equal(t, "yes", event.Tags["shared"])
	require.Len(t, event.Breadcrumbs, 1)
	assert.Same(t, span, scope.Span())
}
