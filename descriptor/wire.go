package descriptor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
)

// The wire types mirror the reasoningEngines resource of the registration
// service.
type wireDescriptor struct {
	DisplayName string   `json:"displayName"`
	Description string   `json:"description,omitempty"`
	Spec        wireSpec `json:"spec"`
}

type wireSpec struct {
	AgentFramework string              `json:"agentFramework,omitempty"`
	ClassMethods   []wireMethod        `json:"classMethods,omitempty"`
	SourceCodeSpec *wireSourceCodeSpec `json:"sourceCodeSpec,omitempty"`
}

type wireSourceCodeSpec struct {
	InlineSource *wireInlineSource `json:"inlineSource,omitempty"`
	PythonSpec   wirePythonSpec    `json:"pythonSpec"`
}

type wireInlineSource struct {
	SourceArchive string `json:"sourceArchive"`
}

type wirePythonSpec struct {
	EntrypointModule string `json:"entrypointModule"`
	EntrypointObject string `json:"entrypointObject"`
	RequirementsFile string `json:"requirementsFile,omitempty"`
}

type wireMethod struct {
	Name        string     `json:"name"`
	APIMode     string     `json:"api_mode"`
	Description string     `json:"description,omitempty"`
	Parameters  wireSchema `json:"parameters"`
}

type wireSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]wireProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

type wireProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// The service encodes unary methods with an empty api_mode.
func modeToWire(m Mode) string {
	if m == ModeUnary {
		return ""
	}
	return string(m)
}

func modeFromWire(s string) Mode {
	if s == "" {
		return ModeUnary
	}
	return Mode(s)
}

func (m MethodSpec) toWire() wireMethod {
	schema := wireSchema{Type: "object", Properties: make(map[string]wireProperty, len(m.Parameters))}
	for name, p := range m.Parameters {
		schema.Properties[name] = wireProperty{Type: p.Type, Description: p.Description}
		if p.Required {
			schema.Required = append(schema.Required, name)
		}
	}
	sort.Strings(schema.Required)

	return wireMethod{
		Name:        m.Name,
		APIMode:     modeToWire(m.Mode),
		Description: m.Description,
		Parameters:  schema,
	}
}

func (w wireMethod) toMethod() MethodSpec {
	required := make(map[string]bool, len(w.Parameters.Required))
	for _, r := range w.Parameters.Required {
		required[r] = true
	}

	params := make(map[string]Parameter, len(w.Parameters.Properties))
	for name, p := range w.Parameters.Properties {
		params[name] = Parameter{Type: p.Type, Required: required[name], Description: p.Description}
	}
	// a required name without a property still counts as a declared parameter
	for name := range required {
		if _, ok := params[name]; !ok {
			params[name] = Parameter{Required: true}
		}
	}

	return MethodSpec{
		Name:        w.Name,
		Mode:        modeFromWire(w.APIMode),
		Description: w.Description,
		Parameters:  params,
	}
}

func (d *Descriptor) toWire() wireDescriptor {
	methods := make([]wireMethod, 0, len(d.Methods))
	for _, m := range d.Methods {
		methods = append(methods, m.toWire())
	}

	return wireDescriptor{
		DisplayName: d.DisplayName,
		Description: d.Description,
		Spec: wireSpec{
			AgentFramework: string(d.Framework),
			ClassMethods:   methods,
			SourceCodeSpec: &wireSourceCodeSpec{
				PythonSpec: wirePythonSpec{
					EntrypointModule: d.Entrypoint.Module,
					EntrypointObject: d.Entrypoint.Object,
					RequirementsFile: d.archivedRequirementsFile(),
				},
			},
		},
	}
}

// MarshalJSON encodes the descriptor as a registration request body without
// the inline source archive.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toWire())
}

// UnmarshalJSON decodes a registration request body. The local source
// location and the package list are not part of the wire form and are left
// empty.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*d = Descriptor{
		DisplayName: w.DisplayName,
		Description: w.Description,
		Framework:   Framework(w.Spec.AgentFramework),
	}
	for _, m := range w.Spec.ClassMethods {
		d.Methods = append(d.Methods, m.toMethod())
	}
	if scs := w.Spec.SourceCodeSpec; scs != nil {
		d.Entrypoint = Entrypoint{Module: scs.PythonSpec.EntrypointModule, Object: scs.PythonSpec.EntrypointObject}
		d.Requirements.File = scs.PythonSpec.RequirementsFile
	}
	return nil
}

// EncodeRequest encodes the registration request body with archive attached
// as inline source.
func (d *Descriptor) EncodeRequest(archive []byte) ([]byte, error) {
	w := d.toWire()
	w.Spec.SourceCodeSpec.InlineSource = &wireInlineSource{
		SourceArchive: base64.StdEncoding.EncodeToString(archive),
	}
	return json.Marshal(w)
}

// DecodeRequest decodes a registration request body produced by
// EncodeRequest and returns the descriptor plus the raw source archive.
func DecodeRequest(data []byte) (*Descriptor, []byte, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil, fmt.Errorf("decode descriptor: %w", err)
	}

	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, fmt.Errorf("decode descriptor: %w", err)
	}

	var archive []byte
	if scs := w.Spec.SourceCodeSpec; scs != nil && scs.InlineSource != nil {
		raw, err := base64.StdEncoding.DecodeString(scs.InlineSource.SourceArchive)
		if err != nil {
			return nil, nil, fmt.Errorf("decode source archive: %w", err)
		}
		archive = raw
	}
	return &d, archive, nil
}

// archivedRequirementsFile is the requirements path inside the source archive.
func (d *Descriptor) archivedRequirementsFile() string {
	if d.Requirements.File != "" {
		if rel, ok := d.requirementsInSource(); ok {
			return rel
		}
		return filepath.ToSlash(filepath.Clean(d.Requirements.File))
	}
	if len(d.Requirements.Packages) > 0 {
		return GeneratedRequirementsFile
	}
	return ""
}
