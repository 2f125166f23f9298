package main

// CLIError is the JSON envelope written to stdout when a command fails.
// Kind is the error classification (not_found, invalid_input, ...) and is
// empty for unclassified errors.
type CLIError struct {
	Command string `json:"command"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}
