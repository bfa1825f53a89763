// Package pipelines runs the Python speech pipeline CLI (doctor, prepare,
// transcribe) as a subprocess and parses its JSON output.
package pipelines

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Capabilities represents what the installed Python pipelines can do,
// as reported by the `doctor --json` command.
type Capabilities struct {
	PackageVersion string             `json:"package_version"`
	Python         PythonInfo         `json:"python"`
	Dependencies   map[string]DepInfo `json:"dependencies"`
	Executables    map[string]DepInfo `json:"executables"`
	GPU            GPUInfo            `json:"gpu"`
	Summary        SummaryInfo        `json:"summary"`

	HasSpeech bool      `json:"has_speech"`
	HasFFmpeg bool      `json:"has_ffmpeg"`
	ProbedAt  time.Time `json:"probed_at"`
}

// PythonInfo holds Python runtime information.
type PythonInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GPUInfo holds GPU availability information.
type GPUInfo struct {
	CUDAAvailable bool   `json:"cuda_available"`
	DeviceCount   int    `json:"device_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// RunResult is the structured outcome of executing a pipeline subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"` // path to the --out JSON file
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// PipelineOutput represents the required metadata fields the agent validates
// in every pipeline JSON output file.
type PipelineOutput struct {
	SchemaVersion   string `json:"schema_version"`
	PipelineVersion string `json:"pipeline_version"`
	ModelVersion    string `json:"model_version"`
}

// RequiredFieldsPresent checks the hard invariants the agent enforces.
func (p PipelineOutput) RequiredFieldsPresent() bool {
	return len(p.MissingFields()) == 0
}

func (p PipelineOutput) MissingFields() []string {
	var missing []string
	if p.SchemaVersion == "" {
		missing = append(missing, "schema_version")
	}
	if p.PipelineVersion == "" {
		missing = append(missing, "pipeline_version")
	}
	if p.ModelVersion == "" {
		missing = append(missing, "model_version")
	}
	return missing
}

// SpeechOutput is the payload written by `speech transcribe`.
type SpeechOutput struct {
	PipelineOutput
	Language string          `json:"language"`
	Segments []SpeechSegment `json:"segments"`
}

type SpeechSegment struct {
	Start Seconds `json:"start"`
	End   Seconds `json:"end"`
	Text  string  `json:"text"`
}

// Seconds accepts a JSON number, a numeric string or null. Valid is false
// when the value was missing or unparsable.
type Seconds struct {
	Value float64
	Valid bool
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	*s = Seconds{}
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		raw = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	s.Value, s.Valid = v, true
	return nil
}

// Ptr returns the value or nil when it was missing.
func (s Seconds) Ptr() *float64 {
	if !s.Valid {
		return nil
	}
	v := s.Value
	return &v
}
