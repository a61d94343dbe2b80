package parcel

import "fmt"

var transitions = map[Status][]Status{
	StatusNew:          {StatusPrepared, StatusCancelled},
	StatusPrepared:     {StatusNew, StatusPickedUp, StatusCancelled},
	StatusPickedUp:     {StatusPrepared, StatusDelivered, StatusNotDelivered},
	StatusDelivered:    {},
	StatusCancelled:    {StatusNew},
	StatusNotDelivered: {StatusPickedUp, StatusCancelled},
}

// AllowedTransitions returns the statuses reachable from current. Statuses
// outside the table, including the derived Partially Delivered, have none.
func AllowedTransitions(current Status) []Status {
	next := transitions[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidateTransition reports whether current may move to target, with a
// human readable reason when it may not.
func ValidateTransition(current, target Status) (bool, string) {
	next, known := transitions[current]
	if !known {
		return false, fmt.Sprintf("current status %q is not recognised", current)
	}
	for _, s := range next {
		if s == target {
			return true, ""
		}
	}
	return false, fmt.Sprintf("transition from %q to %q is not allowed", current, target)
}

// AggregateStatus derives the parcel status from its lines. Mixes that no rule
// covers keep the current status.
func AggregateStatus(current Status, lines []Line) Status {
	if len(lines) == 0 {
		return current
	}
	var pending, partial, delivered, undeliverable int
	for _, l := range lines {
		switch l.Status {
		case LinePending:
			pending++
		case LinePartiallyDelivered:
			partial++
		case LineDelivered:
			delivered++
		case LineUndeliverable:
			undeliverable++
		}
	}
	n := len(lines)
	switch {
	case delivered == n:
		return StatusDelivered
	case pending == n:
		return current
	case partial > 0, delivered > 0 && pending > 0:
		return StatusPartiallyDelivered
	case undeliverable == n:
		return StatusNotDelivered
	default:
		return current
	}
}

// Actions describes what a client may do with a parcel in its current state.
type Actions struct {
	CurrentStatus       Status         `json:"current_status"`
	StatusActions       StatusActions  `json:"status_actions"`
	ArticleActions      ArticleActions `json:"article_actions"`
	AllowedNextStatuses []Status       `json:"allowed_next_statuses"`
}

// StatusActions flags each manual transition endpoint.
type StatusActions struct {
	CanSetNew           bool `json:"can_set_new"`
	CanSetPrepared      bool `json:"can_set_prepared"`
	CanSetPickedUp      bool `json:"can_set_picked_up"`
	CanSetDelivered     bool `json:"can_set_delivered"`
	CanCancel           bool `json:"can_cancel"`
	CanMarkNotDelivered bool `json:"can_mark_not_delivered"`
}

// ArticleActions tells whether line deliveries make sense right now.
type ArticleActions struct {
	CanDeliverArticles bool   `json:"can_deliver_articles"`
	DeliveryMessage    string `json:"delivery_message,omitempty"`
}

// ActionsFor computes the available actions for a status.
func ActionsFor(current Status) Actions {
	next := AllowedTransitions(current)
	allowed := func(s Status) bool {
		for _, n := range next {
			if n == s {
				return true
			}
		}
		return false
	}
	actions := Actions{
		CurrentStatus: current,
		StatusActions: StatusActions{
			CanSetNew:           allowed(StatusNew),
			CanSetPrepared:      allowed(StatusPrepared),
			CanSetPickedUp:      allowed(StatusPickedUp),
			CanSetDelivered:     allowed(StatusDelivered),
			CanCancel:           allowed(StatusCancelled),
			CanMarkNotDelivered: allowed(StatusNotDelivered),
		},
		AllowedNextStatuses: next,
	}
	if current == StatusPickedUp || current == StatusPartiallyDelivered {
		actions.ArticleActions.CanDeliverArticles = true
	} else {
		actions.ArticleActions.DeliveryMessage = fmt.Sprintf("the parcel must be %q or %q before articles can be delivered", StatusPickedUp, StatusPartiallyDelivered)
	}
	return actions
}
