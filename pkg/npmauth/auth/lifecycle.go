package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ResourceID identifies Azure DevOps as the token audience.
const ResourceID = "499b84ac-1321-427f-aa17-267ca6975798"

// DeviceScope is requested during the device flow. offline_access is what
// makes the provider issue a refresh token for the next run.
const DeviceScope = ResourceID + "/.default offline_access"

// IdentityClient is the subset of Provider the lifecycle depends on.
type IdentityClient interface {
	Refresh(ctx context.Context, refreshToken string) RefreshResult
	DeviceAuthorization(ctx context.Context, scope string) (*DeviceAuthorization, error)
}

// RefreshTokenSource looks up a previously stored refresh token.
type RefreshTokenSource interface {
	RegistryRefreshToken(registry string) (string, bool, error)
}

// MessageKind selects how an operator-facing message is rendered.
type MessageKind int

const (
	MessageInfo MessageKind = iota
	MessageProgress
	MessageWarning
	MessageSuccess
)

// Interactor is the operator-facing side of a run. Clipboard and browser
// actions are best-effort: their errors are logged, never propagated.
type Interactor interface {
	Message(kind MessageKind, text string)
	RegistryFound(registry string)
	RegistryDone(registry string)
	PresentDeviceCode(verificationURI, userCode string)
	CopyToClipboard(text string) error
	// AwaitConfirmation blocks until the operator acknowledges, with no local timeout.
	AwaitConfirmation(ctx context.Context, userCode string, copied bool) error
	OpenBrowser(url string) error
}

// State is a step of the per-registry token lifecycle.
type State int

const (
	StateStart State = iota
	StateAttemptingRefresh
	StateDeviceFlow
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateAttemptingRefresh:
		return "AttemptingRefresh"
	case StateDeviceFlow:
		return "DeviceFlow"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager decides which grant to attempt for a registry.
type Manager struct {
	Client     IdentityClient
	Store      RefreshTokenSource
	Interactor Interactor
	Log        *zap.SugaredLogger
	// NonInteractive skips the confirmation prompt and the browser launch.
	NonInteractive bool
	// Scope overrides DeviceScope.
	Scope string
}

// Acquire runs the lifecycle for registry until it is Authenticated or Failed.
func (m *Manager) Acquire(ctx context.Context, registry string) (*TokenSet, error) {
	if m.Client == nil {
		return nil, errors.New("identity client is required")
	}
	if m.Store == nil {
		return nil, errors.New("refresh token store is required")
	}
	log := m.logger().With("registry", registry)
	ui := m.interactor()

	var (
		state        = StateStart
		refreshToken string
		token        *TokenSet
		err          error
	)
	for {
		log.Debugw("Token lifecycle state", "state", state.String())
		switch state {
		case StateStart:
			var found bool
			refreshToken, found, err = m.Store.RegistryRefreshToken(registry)
			switch {
			case err != nil:
				err = fmt.Errorf("failed to look up refresh token for %s: %w", registry, err)
				state = StateFailed
			case found:
				state = StateAttemptingRefresh
			default:
				state = StateDeviceFlow
			}

		case StateAttemptingRefresh:
			ui.Message(MessageProgress, "Trying to use refresh token...")
			result := m.Client.Refresh(ctx, refreshToken)
			switch result.Outcome {
			case RefreshSucceeded:
				if result.Token == nil {
					err = errors.New("refresh succeeded without a token")
					state = StateFailed
					break
				}
				token = result.Token
				state = StateAuthenticated
			case RefreshRecoverable:
				log.Infow("Refresh token rejected, falling back to device code", "error", result.Err)
				ui.Message(MessageWarning, recoverableMessage(result.Err))
				state = StateDeviceFlow
			case RefreshFatal:
				err = result.Err
				state = StateFailed
			default:
				err = fmt.Errorf("unknown refresh outcome: %s", result.Outcome)
				state = StateFailed
			}

		case StateDeviceFlow:
			token, err = m.deviceFlow(ctx, log, ui)
			if err != nil {
				state = StateFailed
			} else {
				state = StateAuthenticated
			}

		case StateAuthenticated:
			return token, nil

		case StateFailed:
			log.Debugw("Token lifecycle failed", "error", err)
			return nil, err

		default:
			return nil, fmt.Errorf("unknown lifecycle state: %s", state)
		}
	}
}

func (m *Manager) deviceFlow(ctx context.Context, log *zap.SugaredLogger, ui Interactor) (*TokenSet, error) {
	ui.Message(MessageProgress, "Launching device code authentication...")
	scope := m.Scope
	if scope == "" {
		scope = DeviceScope
	}
	handle, err := m.Client.DeviceAuthorization(ctx, scope)
	if err != nil {
		return nil, err
	}
	ui.PresentDeviceCode(handle.VerificationURI, handle.UserCode)

	copied := true
	if err := ui.CopyToClipboard(handle.UserCode); err != nil {
		copied = false
		log.Warnw("Failed to copy user code to clipboard", "error", err)
	}

	if !m.NonInteractive {
		if err := ui.AwaitConfirmation(ctx, handle.UserCode, copied); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warnw("Failed to read confirmation, not opening browser", "error", err)
		} else if err := ui.OpenBrowser(handle.VerificationURI); err != nil {
			log.Warnw("Failed to open browser", "url", handle.VerificationURI, "error", err)
			ui.Message(MessageWarning, "Warning: Could not open browser automatically")
		} else {
			ui.Message(MessageSuccess, "Browser opened")
		}
	}

	return handle.Poll(ctx)
}

func (m *Manager) logger() *zap.SugaredLogger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop().Sugar()
}

func (m *Manager) interactor() Interactor {
	if m.Interactor != nil {
		return m.Interactor
	}
	return nopInteractor{}
}

func recoverableMessage(err error) string {
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) && refreshErr.Code == "interaction_required" {
		return "Interaction required."
	}
	return "Refresh token is invalid or expired."
}

type nopInteractor struct{}

func (nopInteractor) Message(MessageKind, string) {}
func (nopInteractor) RegistryFound(string) {}
func (nopInteractor) RegistryDone(string) {}
func (nopInteractor) PresentDeviceCode(string, string) {}
func (nopInteractor) CopyToClipboard(string) error { return nil }
func (nopInteractor) AwaitConfirmation(context.Context, string, bool) error { return nil }
func (nopInteractor) OpenBrowser(string) error { return nil }
