package graph

import "time"

// presenceResponse is the per-user presence resource
type presenceResponse struct {
	ID           string `json:"id"`
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
}

// rawStatus picks the most specific status string from the resource. The
// activity field distinguishes calls and meetings that the availability
// field folds into "Busy".
func (p *presenceResponse) rawStatus() string {
	switch p.Activity {
	case "", "Available", p.Availability:
		return p.Availability
	default:
		return p.Activity
	}
}

// subscriptionRequest is the create/renew payload for the notification service
type subscriptionRequest struct {
	ChangeType         string `json:"changeType,omitempty"`
	NotificationURL    string `json:"notificationUrl,omitempty"`
	Resource           string `json:"resource,omitempty"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}

// subscriptionResponse is the notification service's subscription resource
type subscriptionResponse struct {
	ID                 string `json:"id"`
	Resource           string `json:"resource"`
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState"`
}

func (s *subscriptionResponse) expiry() (time.Time, error) {
	return time.Parse(time.RFC3339, s.ExpirationDateTime)
}
