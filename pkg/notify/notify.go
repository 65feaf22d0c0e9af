// Package notify turns operation outcomes into user-facing notices.
package notify

import (
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/kgcorpus/tagging-console/pkg/backend"
)

// Kind is the visual style of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notice is one message shown to the user.
type Notice struct {
	Kind    Kind
	Title   string
	Message string
	// Retryable means the same action may simply be repeated.
	Retryable bool
	// SignIn means the session ended and the user must sign in again.
	SignIn bool
}

func init() {
	// Notices are stored as session flashes.
	gob.Register(Notice{})
}

// Success builds a confirmation notice.
func Success(title, message string) Notice {
	return Notice{Kind: KindSuccess, Title: title, Message: message}
}

// FromError describes a failed action, e.g. FromError("save the sentence", err).
// Every error yields a notice; none is dropped.
func FromError(action string, err error) Notice {
	switch backend.CategoryOf(err) {
	case backend.CategoryNone:
		return Notice{Kind: KindInfo, Title: "Done"}
	case backend.CategoryTransport:
		return Notice{
			Kind:      KindError,
			Title:     "Network error",
			Message:   fmt.Sprintf("Could not %s: the server could not be reached. Try again.", action),
			Retryable: true,
		}
	case backend.CategoryUnauthorized:
		return Notice{
			Kind:    KindWarning,
			Title:   "Signed out",
			Message: "Your session has ended. Sign in again.",
			SignIn:  true,
		}
	case backend.CategoryServer:
		msg := fmt.Sprintf("Could not %s.", action)
		var se *backend.StatusError
		if errors.As(err, &se) && se.Detail != "" {
			msg = fmt.Sprintf("Could not %s: %s", action, se.Detail)
		}
		return Notice{Kind: KindError, Title: "Request failed", Message: msg, Retryable: true}
	default:
		return Notice{Kind: KindWarning, Title: "Check the form", Message: err.Error(), Retryable: true}
	}
}
