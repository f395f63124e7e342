package domain

// Reason is the short token explaining a denial. The not_authorized and
// expired tokens are shown to callers verbatim.
type Reason string

const (
	ReasonNotAuthorized Reason = "not_authorized"
	ReasonExpired       Reason = "expired"
	ReasonConfigError   Reason = "config_error"
)

// Decision is the outcome of evaluating a single HWID.
type Decision struct {
	Allowed bool
	Reason  Reason // empty when Allowed
}

func Allow() Decision             { return Decision{Allowed: true} }
func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// Outcome is a stable label for logs and metrics.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "authorized"
	}
	return string(d.Reason)
}
