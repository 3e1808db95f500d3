package ai

import "fmt"

// MissingCredentialError is returned before any network activity when the
// selected provider has no API key.
type MissingCredentialError struct {
	Provider string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s API key not provided", e.Provider)
}

type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("Unknown AI provider: %s", e.Provider)
}

// ProviderHTTPError is a non-2xx answer from an OpenAI-compatible endpoint.
type ProviderHTTPError struct {
	StatusCode int
	Message    string
}

func (e *ProviderHTTPError) Error() string {
	return "OpenAI API Error: " + e.Message
}

// MalformedResponseError marks provider output that could not be decoded.
type MalformedResponseError struct {
	What string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.What, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
