package shared

// ActionResult is the response of confirmation-gated operations. Business
// refusals are reported here with Success=false rather than as errors.
type ActionResult struct {
	Success             bool   `json:"success"`
	RequireConfirmation bool   `json:"require_confirmation,omitempty"`
	Message             string `json:"message"`
	PreviousStatus      string `json:"previous_status,omitempty"`
	NewStatus           string `json:"new_status,omitempty"`
	Line                any    `json:"article_data,omitempty"`
	Count               int    `json:"count,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(message string) ActionResult {
	return ActionResult{Success: false, Message: message}
}

// NeedsConfirmation builds the result returned before a confirmed retry.
func NeedsConfirmation(message string) ActionResult {
	return ActionResult{Success: false, RequireConfirmation: true, Message: message}
}
