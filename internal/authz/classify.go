// Package authz separates "your session is gone" from "you may not do this"
// when the API answers with an error status.
package authz

import (
	"net/http"
	"strings"
)

// Kind is the outcome of classifying a failed response.
type Kind int

const (
	// Other covers every status that is neither an authentication nor an
	// authorization failure.
	Other Kind = iota
	// Authentication means the credential is invalid or expired.
	Authentication
	// Authorization means the credential is valid but insufficient.
	Authorization
)

func (k Kind) String() string {
	switch k {
	case Authentication:
		return "authentication"
	case Authorization:
		return "authorization"
	default:
		return "other"
	}
}

// DefaultPhrases are the server messages that mark a 401 as a permission
// denial rather than an invalid session. The backend reuses 401 for both.
var DefaultPhrases = []string{
	"Only members",
	"Only trainers",
	"Insufficient permissions",
	"Admin access required",
	"Unauthorized",
}

// Classifier maps (status, message) to a Kind using a phrase allow-list.
type Classifier struct {
	phrases []string
}

// NewClassifier returns a classifier over phrases. A nil or empty list uses
// DefaultPhrases.
func NewClassifier(phrases []string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	cp := make([]string, len(phrases))
	copy(cp, phrases)
	return &Classifier{phrases: cp}
}

// Phrases returns a copy of the allow-list.
func (c *Classifier) Phrases() []string {
	out := make([]string, len(c.phrases))
	copy(out, c.phrases)
	return out
}

// Classify decides what a failed response means for the session.
// Matching is a case-sensitive substring test against message.
func (c *Classifier) Classify(status int, message string) Kind {
	switch status {
	case http.StatusForbidden:
		return Authorization
	case http.StatusUnauthorized:
		for _, p := range c.phrases {
			if p != "" && strings.Contains(message, p) {
				return Authorization
			}
		}
		return Authentication
	default:
		return Other
	}
}

var defaultClassifier = NewClassifier(nil)

// Classify uses DefaultPhrases.
func Classify(status int, message string) Kind {
	return defaultClassifier.Classify(status, message)
}
