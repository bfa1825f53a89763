package export

import "context"

// Request is the user's export choice.
type Request struct {
	Platform string `json:"platform" yaml:"platform" validate:"omitempty,oneof=tiktok youtube-shorts instagram-reels twitter custom"`
	Quality  string `json:"quality" yaml:"quality" validate:"omitempty,oneof=1080p 720p 480p"`
}

// RenderOutput is what a backend produced for a plan.
type RenderOutput struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Renderer executes a plan, reporting progress as a percentage.
type Renderer interface {
	Render(ctx context.Context, plan Plan, onProgress func(percent int)) (RenderOutput, error)
}

// Result describes a finished export.
type Result struct {
	JobID    string `json:"job_id,omitempty"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// EDLRequest asks for the timeline as an edit decision list.
type EDLRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	FrameRate float64 `json:"frame_rate" validate:"omitempty,gt=0,lte=120"`
	OutputDir string  `json:"output_dir" validate:"required"`
}

type EDLResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}
