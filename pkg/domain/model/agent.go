package model

import "strings"

// Agent is a roster entry: an active helpdesk agent the proxy is willing to
// expose presence for, with cross-reference IDs into the presence providers.
type Agent struct {
	HelpdeskID  string
	GraphID     UserID // UC-platform directory object ID
	SlackID     string // team-chat member ID
	DisplayName string
	Email       string
	Active      bool
}

// Key returns the cache key for this agent. Results from different
// providers must land on the same key so they merge instead of duplicating.
func (a *Agent) Key() UserID {
	if a.GraphID != "" {
		return a.GraphID
	}
	if a.SlackID != "" {
		return UserID(a.SlackID)
	}
	return UserID(a.HelpdeskID)
}

// HasProviderRef reports whether any presence provider can resolve this agent
func (a *Agent) HasProviderRef() bool {
	return a.GraphID != "" || a.SlackID != ""
}

// EmailDomain returns the lower-cased domain part of the agent's email,
// or an empty string when no email is known
func (a *Agent) EmailDomain() string {
	_, domain, ok := strings.Cut(a.Email, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}
