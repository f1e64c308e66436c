// Package descriptor describes how to materialize an agent graph on the
// remote execution service: the source package and its entrypoint, the
// packaging requirements, the agent framework and the exposed API methods.
//
// A Descriptor is produced by Build from a validated graph and is validated
// locally before any remote call. Its JSON form is the body of the
// registration request.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentengine/core"
)

// Mode is the invocation mode of an exposed method.
type Mode string

const (
	// ModeUnary is a single request/response call.
	ModeUnary Mode = "unary"
	// ModeStream yields an ordered sequence of chunks.
	ModeStream Mode = "stream"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeUnary || m == ModeStream }

// Framework is the agent framework tag the remote service uses to load the
// entrypoint.
type Framework string

const (
	FrameworkADK        Framework = "google-adk"
	FrameworkLangChain  Framework = "langchain"
	FrameworkLangGraph  Framework = "langgraph"
	FrameworkAG2        Framework = "ag2"
	FrameworkLlamaIndex Framework = "llama-index"
	FrameworkCustom     Framework = "custom"
)

// Frameworks lists the framework tags recognised by the registration service.
func Frameworks() []Framework {
	return []Framework{FrameworkADK, FrameworkLangChain, FrameworkLangGraph, FrameworkAG2, FrameworkLlamaIndex, FrameworkCustom}
}

// Valid reports whether f is a recognised framework tag.
func (f Framework) Valid() bool {
	for _, known := range Frameworks() {
		if f == known {
			return true
		}
	}
	return false
}

// Parameter describes a single method parameter.
type Parameter struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// MethodSpec is one method of the remote API surface.
type MethodSpec struct {
	Name        string               `json:"name"`
	Mode        Mode                 `json:"mode"`
	Description string               `json:"description,omitempty"`
	Parameters  map[string]Parameter `json:"parameters"`
}

// Requires reports whether the method declares name as a required parameter
// of the given type.
func (m MethodSpec) Requires(name, typ string) bool {
	p, ok := m.Parameters[name]
	return ok && p.Required && p.Type == typ
}

// Entrypoint identifies the in-source object serving the root agent.
type Entrypoint struct {
	Module string
	Object string
}

// String returns "module:object".
func (e Entrypoint) String() string { return e.Module + ":" + e.Object }

// Requirements is the installable dependency set. File is relative to the
// source location; Packages are written into a generated requirements file
// when File is empty.
type Requirements struct {
	File     string
	Packages []string
}

// Descriptor is a serializable package describing how to materialize an
// agent graph remotely.
type Descriptor struct {
	DisplayName    string
	Description    string
	SourceLocation string
	Entrypoint     Entrypoint
	Requirements   Requirements
	Framework      Framework
	Methods        []MethodSpec
}

// QueryParameters are the parameters every streaming entry method must require.
var QueryParameters = []string{"user_id", "session_id", "message"}

// Validate checks the descriptor locally. It never contacts the remote
// service; every failure is a *core.ValidationError.
func (d *Descriptor) Validate() error {
	if d.DisplayName == "" {
		return core.NewValidationError("display_name", d.DisplayName, "display name must not be empty")
	}
	if d.Entrypoint.Module == "" {
		return core.NewValidationError("entrypoint.module", d.Entrypoint.Module, "entrypoint module must not be empty")
	}
	if d.Entrypoint.Object == "" {
		return core.NewValidationError("entrypoint.object", d.Entrypoint.Object, "entrypoint object must not be empty")
	}
	if !d.Framework.Valid() {
		return core.NewValidationError("framework", d.Framework, "unrecognised framework tag %q (known: %v)", d.Framework, Frameworks())
	}
	if err := d.validateMethods(); err != nil {
		return err
	}
	if err := checkReadable("source_location", d.SourceLocation); err != nil {
		return err
	}
	if d.Requirements.File != "" {
		if err := checkReadable("requirements.file", d.RequirementsPath()); err != nil {
			return err
		}
		if _, ok := d.requirementsInSource(); !ok {
			return core.NewValidationError("requirements.file", d.Requirements.File,
				"requirements file must be inside the source location %s", sourceDir(d.SourceLocation))
		}
	}
	return nil
}

func (d *Descriptor) validateMethods() error {
	if len(d.Methods) == 0 {
		return core.NewValidationError("methods", nil, "at least one method must be exposed")
	}

	seen := make(map[string]bool, len(d.Methods))
	streamOK := false
	for i, m := range d.Methods {
		field := fmt.Sprintf("methods[%d]", i)
		if m.Name == "" {
			return core.NewValidationError(field+".name", m.Name, "method name must not be empty")
		}
		if seen[m.Name] {
			return core.NewValidationError(field+".name", m.Name, "duplicate method %q", m.Name)
		}
		seen[m.Name] = true

		if !m.Mode.Valid() {
			return core.NewValidationError(field+".mode", m.Mode, "method %s: invalid invocation mode %q", m.Name, m.Mode)
		}
		for name, p := range m.Parameters {
			if name == "" || p.Type == "" {
				return core.NewValidationError(field+".parameters", name, "method %s: parameters need a name and a type", m.Name)
			}
		}
		if m.Mode == ModeStream && m.requiresQueryParameters() {
			streamOK = true
		}
	}

	if !streamOK {
		return core.NewValidationError("methods", QueryParameters,
			"at least one stream method must require %v as string parameters", QueryParameters)
	}
	return nil
}

func (m MethodSpec) requiresQueryParameters() bool {
	for _, p := range QueryParameters {
		if !m.Requires(p, "string") {
			return false
		}
	}
	return true
}

// StreamMethod returns the first stream method requiring the query parameters.
func (d *Descriptor) StreamMethod() (MethodSpec, bool) {
	for _, m := range d.Methods {
		if m.Mode == ModeStream && m.requiresQueryParameters() {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// Method returns the method with the given name.
func (d *Descriptor) Method(name string) (MethodSpec, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// RequirementsPath returns the requirements file path on the local file
// system, resolved against the source location.
func (d *Descriptor) RequirementsPath() string {
	if d.Requirements.File == "" || filepath.IsAbs(d.Requirements.File) {
		return d.Requirements.File
	}
	return filepath.Join(sourceDir(d.SourceLocation), d.Requirements.File)
}

// requirementsInSource returns the requirements file relative to the source
// root, slash separated. ok is false when the file lies outside the root and
// therefore cannot be part of the uploaded archive.
func (d *Descriptor) requirementsInSource() (rel string, ok bool) {
	root, err := filepath.Abs(sourceDir(d.SourceLocation))
	if err != nil {
		return "", false
	}
	path, err := filepath.Abs(d.RequirementsPath())
	if err != nil {
		return "", false
	}
	rel, err = filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func sourceDir(loc string) string {
	if fi, err := os.Stat(loc); err == nil && !fi.IsDir() {
		return filepath.Dir(loc)
	}
	return loc
}

func checkReadable(field, path string) error {
	if path == "" {
		return core.NewValidationError(field, path, "path must not be empty")
	}

	fi, err := os.Stat(path)
	if err != nil {
		return core.NewValidationError(field, path, "location is not accessible: %v", err)
	}

	if fi.IsDir() {
		if _, err := os.ReadDir(path); err != nil {
			return core.NewValidationError(field, path, "directory is not readable: %v", err)
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return core.NewValidationError(field, path, "file is not readable: %v", err)
	}
	return f.Close()
}
