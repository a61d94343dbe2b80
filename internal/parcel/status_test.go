package parcel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	expected := map[Status][]Status{
		StatusNew:          {StatusPrepared, StatusCancelled},
		StatusPrepared:     {StatusNew, StatusPickedUp, StatusCancelled},
		StatusPickedUp:     {StatusPrepared, StatusDelivered, StatusNotDelivered},
		StatusDelivered:    {},
		StatusCancelled:    {StatusNew},
		StatusNotDelivered: {StatusPickedUp, StatusCancelled},
	}
	all := []Status{StatusNew, StatusPrepared, StatusPickedUp, StatusPartiallyDelivered, StatusDelivered, StatusCancelled, StatusNotDelivered}
	for from, targets := range expected {
		assert.ElementsMatch(t, targets, AllowedTransitions(from), string(from))
		for _, to := range all {
			ok, reason := ValidateTransition(from, to)
			assert.Equal(t, contains(targets, to), ok, "%s -> %s", from, to)
			if !ok {
				assert.Contains(t, reason, "not allowed")
			}
		}
	}
}

func TestPartiallyDeliveredIsNotATableRow(t *testing.T) {
	assert.Empty(t, AllowedTransitions(StatusPartiallyDelivered))
	ok, reason := ValidateTransition(StatusPartiallyDelivered, StatusDelivered)
	assert.False(t, ok)
	assert.Contains(t, reason, "not recognised")
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(StatusNew)
	next[0] = StatusDelivered
	assert.Equal(t, StatusPrepared, AllowedTransitions(StatusNew)[0])
}

func lines(statuses ...LineStatus) []Line {
	out := make([]Line, len(statuses))
	for i, s := range statuses {
		out[i] = Line{Status: s}
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		lines   []Line
		want    Status
	}{
		{"no lines", StatusPickedUp, nil, StatusPickedUp},
		{"all delivered", StatusPickedUp, lines(LineDelivered, LineDelivered), StatusDelivered},
		{"all pending", StatusPrepared, lines(LinePending, LinePending), StatusPrepared},
		{"any partial", StatusPickedUp, lines(LinePartiallyDelivered, LinePending), StatusPartiallyDelivered},
		{"delivered and pending", StatusPickedUp, lines(LineDelivered, LinePending), StatusPartiallyDelivered},
		{"delivered and partial", StatusPickedUp, lines(LineDelivered, LinePartiallyDelivered), StatusPartiallyDelivered},
		{"all undeliverable", StatusPickedUp, lines(LineUndeliverable, LineUndeliverable), StatusNotDelivered},
		{"delivered and undeliverable", StatusPickedUp, lines(LineDelivered, LineUndeliverable), StatusPickedUp},
		{"pending and undeliverable", StatusNew, lines(LinePending, LineUndeliverable), StatusNew},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, AggregateStatus(c.current, c.lines))
		})
	}
}

func TestAggregateStatusIgnoresOrder(t *testing.T) {
	a := AggregateStatus(StatusPickedUp, lines(LinePending, LineDelivered, LinePartiallyDelivered))
	b := AggregateStatus(StatusPickedUp, lines(LinePartiallyDelivered, LinePending, LineDelivered))
	assert.Equal(t, a, b)
}

func TestActionsFor(t *testing.T) {
	a := ActionsFor(StatusPickedUp)
	assert.True(t, a.StatusActions.CanSetDelivered)
	assert.True(t, a.StatusActions.CanMarkNotDelivered)
	assert.False(t, a.StatusActions.CanCancel)
	assert.True(t, a.ArticleActions.CanDeliverArticles)

	a = ActionsFor(StatusPartiallyDelivered)
	assert.Empty(t, a.AllowedNextStatuses)
	assert.True(t, a.ArticleActions.CanDeliverArticles)

	a = ActionsFor(StatusNew)
	assert.True(t, a.StatusActions.CanSetPrepared)
	assert.True(t, a.StatusActions.CanCancel)
	assert.False(t, a.ArticleActions.CanDeliverArticles)
	assert.NotEmpty(t, a.ArticleActions.DeliveryMessage)
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
