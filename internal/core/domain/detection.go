package domain

import "time"

// PipelineState is the detection pipeline's lifecycle state. Exactly one
// inference may be in flight system-wide.
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateLoadingModel PipelineState = "loading_model"
	StateModelReady   PipelineState = "model_ready"
	StateCapturing    PipelineState = "capturing"
	StatePreprocess   PipelineState = "preprocessing"
	StateInferring    PipelineState = "inferring"
	StateRendering    PipelineState = "rendering"
	StateError        PipelineState = "error"
)

// Viewport describes the current map view to capture: geographic bounds,
// the on-screen pixel size, and the integer tile zoom backing the view.
type Viewport struct {
	ID     string `json:"id"`
	Bounds Bounds `json:"bounds"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Zoom   int    `json:"zoom"`
}

// Tensor is a dense row-major float tensor as returned by the inference
// runtime. Detection output has shape [1, numAttributes, numCandidates].
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// At indexes a 3-D tensor as [batch, attribute, candidate].
func (t Tensor) At(b, a, c int) float32 {
	return t.Data[(b*t.Shape[1]+a)*t.Shape[2]+c]
}

// Detection is one detected object, carrying both the raw model-space box
// and the back-projected geographic box.
type Detection struct {
	ClassID     int        `json:"class_id"`
	Score       float64    `json:"score"`
	ModelBox    [4]float64 `json:"model_box"` // cx, cy, w, h in model input pixels
	TopLeft     GeoPoint   `json:"top_left"`
	BottomRight GeoPoint   `json:"bottom_right"`
	Center      GeoPoint   `json:"center"`
}

// DetectionSet is the full result of one inference pass. Each pass
// replaces the previous set wholesale.
type DetectionSet struct {
	PassID         string      `json:"pass_id"`
	ViewportID     string      `json:"viewport_id"`
	TakenAt        time.Time   `json:"taken_at"`
	MetersPerPixel float64     `json:"meters_per_pixel"`
	Detections     []Detection `json:"detections"`
}
