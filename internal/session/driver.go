// Package session defines the narrow surface the scheduler needs from an
// automation session against the target platform.
package session

// Driver is an opaque automation handle. The scheduler only needs to submit
// credentials, observe whether the session is still on the login surface,
// read the ban banner if one is present, and clear cookies between retries.
type Driver interface {
	// SubmitCredentials navigates to the login surface and submits the
	// account's credentials. An error means the credential-entry fields were
	// never locatable; it counts against the login attempt budget.
	SubmitCredentials(accountID, credential string) error
	// OnLoginSurface reports whether the session still shows the login surface.
	OnLoginSurface() bool
	// BanSignal returns the ban banner message, if one is present.
	BanSignal() (string, bool)
	// ClearCookies drops all session state before a retry.
	ClearCookies()
}

// Actor performs the actual platform action once a session is
// authenticated. Kept separate from Driver: login handling never posts.
type Actor interface {
	Perform(actionType, targetID, content string) error
}
