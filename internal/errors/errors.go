// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the summon CLI.
//
// This package defines SummonError, a type that carries structured error
// information including what went wrong, why it happened, and how to fix
// it. It also defines consistent exit codes for the error taxonomy: a
// configuration error, an environment error, an I/O error, a
// data-integrity error, a plugin error, a task exception, and a logic
// error.
//
// # Usage Example
//
// Creating and displaying errors:
//
//	err := errors.NewConfigError(
//	    "Cannot resolve modmanager",
//	    "config.json5 names modmanager \"mo3\" but no such adapter exists",
//	    "Set modmanager to one of: mo2",
//	    underlyingErr,
//	)
//	if err != nil {
//	    // Simple approach: print and exit with colored output
//	    errors.FatalError(err, false)
//	}
//
// # Formatted Output
//
// The Format() method provides colored terminal output:
//
//	err := errors.NewEnvironmentError(
//	    "Cannot find 7z on PATH",
//	    "archive indexing requires an external 7-Zip binary",
//	    "Install 7-Zip and ensure 7z is on PATH",
//	    underlyingErr,
//	)
//	fmt.Fprint(os.Stderr, err.Format(false))
//	// Output (with colors):
//	// Error: Cannot find 7z on PATH
//	// Cause: archive indexing requires an external 7-Zip binary
//	// Fix:   Install 7-Zip and ensure 7z is on PATH
//
// For JSON output:
//
//	jsonData := err.ToJSON()
//	json.NewEncoder(os.Stderr).Encode(jsonData)
//	// Output:
//	// {
//	//   "error": "Cannot find 7z on PATH",
//	//   "cause": "archive indexing requires an external 7-Zip binary",
//	//   "fix": "Install 7-Zip and ensure 7z is on PATH",
//	//   "exit_code": 2
//	// }
//
// # Exit Codes
//
// The package defines semantic exit codes following Unix conventions:
//   - ExitSuccess (0): Successful execution
//   - ExitConfig (1): Configuration error (missing/invalid config, unknown modmanager)
//   - ExitEnvironment (2): Environment error (missing companion dir, failed clone, missing extractor)
//   - ExitIO (3): I/O error (unrecoverable read/write failure)
//   - ExitDataIntegrity (4): Data-integrity error (corrupted or self-contradictory cache/index)
//   - ExitPlugin (5): Plugin error (a plugin failure that could not be contained per-archive)
//   - ExitTask (6): Task exception (uncaught error from a scheduler worker/owner task)
//   - ExitLogic (7): Logic error (violated invariant: unknown dependency, unsatisfied tag, cycle)
//   - ExitInternal (10): Internal errors (bugs, panics)
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for the error taxonomy.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitConfig indicates a configuration error: missing/invalid config
	// files, an unknown modmanager name, or an unresolvable {…}
	// interpolation.
	ExitConfig = 1

	// ExitEnvironment indicates an environment error: a missing companion
	// directory, a failed git clone, or a missing external extractor
	// (7z, unar) on PATH.
	ExitEnvironment = 2

	// ExitIO indicates an unrecoverable I/O error. A single file's read
	// failure during a scan is not fatal and does not use this code; a
	// cache or index persist failure does.
	ExitIO = 3

	// ExitDataIntegrity indicates a corrupted or self-contradictory
	// persisted cache or archive index.
	ExitDataIntegrity = 4

	// ExitPlugin indicates a plugin error that could not be contained
	// per-archive and propagated out to the run.
	ExitPlugin = 5

	// ExitTask indicates a task exception: an uncaught error surfaced by
	// the scheduler from a worker or owner task.
	ExitTask = 6

	// ExitLogic indicates a violated invariant: an unknown dependency
	// name, an unsatisfied data-dependency tag, or a cyclic task graph.
	ExitLogic = 7

	// ExitInternal indicates internal errors (bugs, unexpected panics).
	// Exit code 10 signals "this is a bug that should be reported".
	ExitInternal = 10
)

// SummonError represents an error with structured context for end users.
//
// It provides three levels of information:
//   - Message: What went wrong (user-facing error description)
//   - Cause: Why it happened (diagnostic information)
//   - Fix: How to fix it (actionable suggestion)
//
// SummonError also carries an exit code for consistent CLI exit behavior
// and optionally wraps an underlying error for error chain compatibility.
type SummonError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is the exit code that should be used when exiting due to this error.
	ExitCode int

	// Err is the underlying error that caused this error (optional).
	// This enables error wrapping and compatibility with errors.Is/As.
	Err error
}

// Error implements the error interface.
//
// It returns a simple error message string. If an underlying error is present,
// it appends that error's message for context.
func (e *SummonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements error unwrapping for compatibility with errors.Is and errors.As.
//
// It returns the underlying error, allowing standard library error inspection
// functions to work with error chains.
func (e *SummonError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error with exit code ExitConfig.
//
// Use this for errors related to missing, invalid, or malformed
// configuration — config.json5 parse failures, an unknown modmanager
// name, or a dangling {dotted.path} interpolation.
//
// Example:
//
//	return NewConfigError(
//	    "Cannot load summon configuration",
//	    "config.json5 is missing required key \"downloads\"",
//	    "Add a \"downloads\" directory path to config.json5",
//	    nil,
//	)
func NewConfigError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitConfig,
		Err:      err,
	}
}

// NewEnvironmentError creates an environment error with exit code ExitEnvironment.
//
// Use this for errors related to the surrounding environment: a missing
// companion mod-manager directory or a required external extractor
// (7z, unar) absent from PATH.
//
// Example:
//
//	return NewEnvironmentError(
//	    "Cannot locate mod manager profile directory",
//	    "the path configured under modmanager.mo2 does not exist",
//	    "Check the mo2 installation path in config.json5",
//	    err,
//	)
func NewEnvironmentError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitEnvironment,
		Err:      err,
	}
}

// NewIOError creates an I/O error with exit code ExitIO.
//
// Use this for unrecoverable I/O failures such as a cache or manifest
// persist failure. A single file's read error encountered during a
// folder scan should be logged and the file treated as absent instead of
// raised through this constructor.
//
// Example:
//
//	return NewIOError(
//	    "Cannot persist folder cache",
//	    "write to cache/folders.cache failed",
//	    "Check available disk space and directory permissions",
//	    err,
//	)
func NewIOError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitIO,
		Err:      err,
	}
}

// NewDataIntegrityError creates a data-integrity error with exit code ExitDataIntegrity.
//
// Use this when a persisted cache or archive index is corrupted or
// self-contradictory — e.g. a gob-decoded folder cache whose digest list
// length disagrees with its file-size list.
//
// Example:
//
//	return NewDataIntegrityError(
//	    "Archive index is corrupted",
//	    "gitdata.json entry for 7e4a... has a truncated digest",
//	    "Delete the archive index and let summon rebuild it",
//	    err,
//	)
func NewDataIntegrityError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitDataIntegrity,
		Err:      err,
	}
}

// NewPluginError creates a plugin error with exit code ExitPlugin.
//
// Most plugin failures (an ExtraDataFactory raising while indexing one
// archive) are captured and attached to that archive's index entry
// rather than raised through this constructor. Use this for plugin
// failures that cannot be contained that way, such as a configured
// plugin that fails to register at startup.
//
// Example:
//
//	return NewPluginError(
//	    "Archive plugin failed to register",
//	    "the .rar plugin could not locate the unar binary",
//	    "Install unar or remove .rar archives from downloads",
//	    err,
//	)
func NewPluginError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitPlugin,
		Err:      err,
	}
}

// NewTaskError creates a task exception with exit code ExitTask.
//
// Use this for uncaught errors surfaced by the scheduler from a worker
// or owner task (including a recovered panic); tasks are never retried,
// so the first such error stops the run.
//
// Example:
//
//	return NewTaskError(
//	    "Task \"hash:archive:7e4a...\" failed",
//	    "panic recovered while hashing nested archive",
//	    "Re-run with the archive removed from downloads to isolate it",
//	    err,
//	)
func NewTaskError(msg, cause, fix string, err error) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitTask,
		Err:      err,
	}
}

// NewLogicError creates a logic error with exit code ExitLogic.
//
// Use this for violated invariants: an unknown dependency name passed to
// AddTask, an unsatisfied data-dependency tag at graph-build time, or a
// cyclic task graph detected before scheduling starts. Logic errors
// indicate a bug in how the caller assembled the task graph rather than
// a runtime failure, so they typically do not wrap an underlying error.
//
// Example:
//
//	return NewLogicError(
//	    "Unknown task dependency",
//	    "task \"guess:install\" depends on \"scan:archives\" which was never added",
//	    "Add the missing task before AddTask is called, or fix the typo",
//	)
func NewLogicError(msg, cause, fix string) *SummonError {
	return &SummonError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitLogic,
		Err:      nil,
	}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display.
//
// The output includes colored sections for Error (red/bold), Cause (yellow),
// and Fix (green). Color output respects the NO_COLOR environment variable
// and can be explicitly disabled with the noColor parameter.
//
// Example output:
//
//	Error: Cannot find 7z on PATH
//	Cause: archive indexing requires an external 7-Zip binary
//	Fix:   Install 7-Zip and ensure 7z is on PATH
//
// Empty Cause or Fix fields are omitted from the output.
//
// Note: This method temporarily modifies the global color.NoColor state
// and restores it after formatting. The change is not synchronised, so
// concurrent calls can observe each other's setting.
func (e *SummonError) Format(noColor bool) string {
	// Save and restore global color state to avoid side effects
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON represents error information in JSON format.
//
// This structure is suitable for machine consumption and integrates with
// CLI commands that support --json output mode.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the SummonError to a JSON-serializable structure.
//
// Fields with empty values (Cause, Fix) are omitted from JSON output
// using the omitempty tag. This keeps JSON output clean when additional
// context is not available.
func (e *SummonError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints the error and exits with the appropriate code.
//
// If the error is a SummonError, it uses Format() for colored output or
// ToJSON() for JSON mode. For non-SummonError types, it prints a simple
// error message and exits with ExitInternal.
//
// A nil err is a no-op and returns immediately; for any other error this
// function never returns - it always calls os.Exit().
//
// Usage:
//
//	if err := doSomething(); err != nil {
//	    errors.FatalError(err, jsonMode)
//	}
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if se, ok := err.(*SummonError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// Encode error is intentionally ignored since we're about to exit.
			// If JSON encoding fails, the program will still exit with the correct code.
			_ = enc.Encode(se.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, se.Format(false))
		}
		os.Exit(se.ExitCode)
	}

	// Fallback for non-SummonError
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
