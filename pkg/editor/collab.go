package editor

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/i18n"
)

// ConfirmRequest describes a confirmation dialog.
type ConfirmRequest struct {
	Title        string
	Body         string
	ConfirmLabel string
	CancelLabel  string
	Destructive  bool
}

// Confirmer asks the operator to confirm an action.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) bool

func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) bool {
	return f(ctx, req)
}

// AlwaysConfirm confirms every request.
var AlwaysConfirm = ConfirmFunc(func(context.Context, ConfirmRequest) bool { return true })

// Notifier shows a fire-and-forget toast.
type Notifier interface {
	Notify(message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(message string)

func (f NotifyFunc) Notify(message string) { f(message) }

// logNotifier writes toasts to the log.
type logNotifier struct{}

func (logNotifier) Notify(message string) {
	log.Info().Str("toast", message).Msg("notification")
}

// Navigator leaves the current view.
type Navigator interface {
	Back()
}

// NavigateFunc adapts a function to Navigator.
type NavigateFunc func()

func (f NavigateFunc) Back() { f() }

type nopNavigator struct{}

func (nopNavigator) Back() {}

// Localizer resolves display texts.
type Localizer interface {
	T(key string, args map[string]any) string
}

type collaborators struct {
	confirm  Confirmer
	notify   Notifier
	navigate Navigator
	tr       Localizer
}

func defaultCollaborators() collaborators {
	return collaborators{
		confirm:  AlwaysConfirm,
		notify:   logNotifier{},
		navigate: nopNavigator{},
		tr:       i18n.Default(),
	}
}

// Option configures a controller.
type Option func(*collaborators)

// WithConfirmer sets the confirmation dialog.
func WithConfirmer(c Confirmer) Option {
	return func(o *collaborators) { o.confirm = c }
}

// WithNotifier sets the toast sink.
func WithNotifier(n Notifier) Option {
	return func(o *collaborators) { o.notify = n }
}

// WithNavigator sets the navigation collaborator.
func WithNavigator(n Navigator) Option {
	return func(o *collaborators) { o.navigate = n }
}

// WithLocalizer sets the translation lookup.
func WithLocalizer(l Localizer) Option {
	return func(o *collaborators) { o.tr = l }
}
