package app

import "errors"

var (
	// ErrDocumentNotReady indicates text extraction has not completed
	// for the document.
	ErrDocumentNotReady = errors.New("document not ready")
	ErrDocumentNotFound = errors.New("document not found")
	ErrForbidden        = errors.New("access denied")
	ErrSessionNotFound  = errors.New("chat session not found")

	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")

	ErrLinkTokenInvalid = errors.New("invalid or expired link token")
	ErrAlreadyLinked    = errors.New("account already linked")
	ErrNotLinked        = errors.New("no linked account")
)
