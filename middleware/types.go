package middleware

import (
	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
)

// ClassifyRequest is the body of POST /v1/classify and the gRPC Classify input
type ClassifyRequest struct {
	Text           string                `json:"text"`
	SourceName     string                `json:"source_name,omitempty"`
	TenantID       string                `json:"tenant_id,omitempty"`
	Detectors      *classify.DetectorSet `json:"detectors,omitempty"`
	IncludeSamples bool                  `json:"include_samples,omitempty"`
	SkipStreaming  bool                  `json:"skip_streaming,omitempty"`
	SkipCache      bool                  `json:"skip_cache,omitempty"`
}

func (r *ClassifyRequest) processRequest() pipeline.ProcessRequest {
	return pipeline.ProcessRequest{
		Text:           r.Text,
		SourceName:     r.SourceName,
		TenantID:       r.TenantID,
		Detectors:      r.Detectors,
		IncludeSamples: r.IncludeSamples,
		SkipStreaming:  r.SkipStreaming,
		SkipCache:      r.SkipCache,
	}
}

// ValidateRequest checks a detector set, or the loaded catalog when Detectors is nil
type ValidateRequest struct {
	Detectors *classify.DetectorSet `json:"detectors,omitempty"`
}

// ValidateResponse reports the validity scan
type ValidateResponse struct {
	Valid     bool                       `json:"valid"`
	Detectors int                        `json:"detectors"`
	Invalid   []classify.InvalidDetector `json:"invalid"`
}

// PresetsResponse lists the built-in sample detectors
type PresetsResponse struct {
	Presets []classify.Detector `json:"presets"`
}

func validate(processor pipeline.Processor, req *ValidateRequest) *ValidateResponse {
	set := processor.Detectors()
	if req.Detectors != nil {
		set = *req.Detectors
	}
	invalid := processor.Validate(&set)
	if invalid == nil {
		invalid = []classify.InvalidDetector{}
	}
	return &ValidateResponse{
		Valid:     len(invalid) == 0,
		Detectors: set.Len(),
		Invalid:   invalid,
	}
}
