package imap

// AuthError is an IMAP authentication failure. It is fatal for the
// mailbox: the coordinator marks the mailbox as errored and stops
// retrying until the credentials change.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "imap authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientError is a network-level failure (connect, greeting or socket
// timeout, dropped connection). The cycle aborts and the next cycle
// retries from the unchanged checkpoint.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "imap transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
