package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aitzol/tilescout/internal/core/domain"
	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/pkg/geospatial"
	"github.com/aitzol/tilescout/internal/pkg/raster"
	"github.com/aitzol/tilescout/internal/pkg/tilemath"
)

// confidenceThreshold is the minimum class score a candidate box must
// reach to survive decoding.
const confidenceThreshold = 0.05

// DetectService runs the viewport detection pipeline. The model is
// loaded lazily exactly once; at most one inference pass is in flight
// at any time, a second trigger is skipped rather than queued.
type DetectService struct {
	capturer ports.ViewportCapturer
	runtime  ports.DetectionRuntime
	events   ports.EventPublisher
	runs     ports.RunRepository

	mu         sync.Mutex
	state      domain.PipelineState
	loading    bool
	loaded     bool
	loadFailed bool
	busy       bool
	latest     *domain.DetectionSet
}

// NewDetectService creates a new DetectService. events and runs may be
// nil when publishing or bookkeeping is disabled.
func NewDetectService(capturer ports.ViewportCapturer, runtime ports.DetectionRuntime, events ports.EventPublisher, runs ports.RunRepository) *DetectService {
	return &DetectService{
		capturer: capturer,
		runtime:  runtime,
		events:   events,
		runs:     runs,
		state:    domain.StateIdle,
	}
}

// State returns the pipeline's current lifecycle state.
func (s *DetectService) State() domain.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the most recent detection set, or nil before the first
// completed pass. Each pass replaces the set wholesale.
func (s *DetectService) Latest() *domain.DetectionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close releases the model runtime.
func (s *DetectService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil
	}
	s.loaded = false
	s.state = domain.StateIdle
	return s.runtime.Close()
}

// ensureModel loads the model on first use. Concurrent callers collapse
// onto one load: whoever finds the loading flag set reports unavailable
// instead of starting a second load. A failed load is terminal for the
// service instance, later calls do not retry.
func (s *DetectService) ensureModel(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	if s.loadFailed || s.loading {
		s.mu.Unlock()
		return domain.ErrModelUnavailable
	}
	s.loading = true
	s.state = domain.StateLoadingModel
	s.mu.Unlock()

	err := s.runtime.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.loadFailed = true
		s.state = domain.StateError
		return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	s.loaded = true
	s.state = domain.StateModelReady
	return nil
}

// Detect captures the viewport, runs one inference pass, and publishes
// the geo-projected detection set. Returns ErrCaptureBusy when a pass is
// already in flight.
func (s *DetectService) Detect(ctx context.Context, vp domain.Viewport) (*domain.DetectionSet, error) {
	if err := s.ensureModel(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, domain.ErrCaptureBusy
	}
	s.busy = true
	s.state = domain.StateCapturing
	s.mu.Unlock()

	// The pipeline always lands back on ModelReady, whatever happened
	// in between. Errors are reported, never left as a stuck state.
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.state = domain.StateModelReady
		s.mu.Unlock()
	}()

	img, err := s.capturer.Capture(ctx, vp)
	if err != nil {
		s.setState(domain.StateError)
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureFailure, err)
	}
	capW := img.Bounds().Dx()
	capH := img.Bounds().Dy()
	if capW <= 0 || capH <= 0 {
		s.setState(domain.StateError)
		return nil, fmt.Errorf("%w: empty capture", domain.ErrCaptureFailure)
	}

	s.setState(domain.StatePreprocess)
	lb := raster.LetterboxFit(img, s.runtime.InputSize())
	data, shape := raster.ToCHW(lb.Image)

	s.setState(domain.StateInferring)
	out, err := s.runtime.Infer(ctx, data, shape)
	if err != nil {
		s.setState(domain.StateError)
		return nil, fmt.Errorf("%w: %v", domain.ErrInferenceFailure, err)
	}
	if len(out.Shape) != 3 || out.Shape[0] != 1 || out.Shape[1] < 5 {
		s.setState(domain.StateError)
		return nil, fmt.Errorf("%w: unexpected output shape %v", domain.ErrInferenceFailure, out.Shape)
	}
	if len(out.Data) < out.Shape[1]*out.Shape[2] {
		s.setState(domain.StateError)
		return nil, fmt.Errorf("%w: output data has %d values, shape %v needs %d",
			domain.ErrInferenceFailure, len(out.Data), out.Shape, out.Shape[1]*out.Shape[2])
	}

	// The capture or inference may settle after the caller has gone
	// away; check before applying the result.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.setState(domain.StateRendering)
	detections := s.decode(out, lb, vp, capW, capH)

	set := &domain.DetectionSet{
		PassID:         uuid.NewString(),
		ViewportID:     vp.ID,
		TakenAt:        time.Now().UTC(),
		MetersPerPixel: geospatial.MetersPerPixel(vp.Bounds.Center().Lat, vp.Zoom),
		Detections:     detections,
	}

	s.mu.Lock()
	s.latest = set
	s.mu.Unlock()

	if s.events != nil {
		_ = s.events.PublishDetections(ctx, set)
	}
	if s.runs != nil {
		_ = s.runs.Record(ctx, &domain.Run{
			ID:         set.PassID,
			Kind:       domain.RunDetection,
			Detections: len(detections),
			CreatedAt:  set.TakenAt,
		})
	}
	return set, nil
}

// decode walks the raw output tensor, shape [1, attributes, candidates]
// with channels 0-3 holding box center and size in model pixels and the
// rest per-class scores, and back-projects each surviving box through
// letterbox, capture, and viewport space into geographic coordinates.
func (s *DetectService) decode(out domain.Tensor, lb raster.Letterbox, vp domain.Viewport, capW, capH int) []domain.Detection {
	numAttrs := out.Shape[1]
	numCandidates := out.Shape[2]

	rx := float64(vp.Width) / float64(capW)
	ry := float64(vp.Height) / float64(capH)

	var detections []domain.Detection
	for c := 0; c < numCandidates; c++ {
		classID := -1
		best := float32(0)
		for a := 4; a < numAttrs; a++ {
			if score := out.At(0, a, c); score > best {
				best = score
				classID = a - 4
			}
		}
		if float64(best) < confidenceThreshold {
			continue
		}

		cx := float64(out.At(0, 0, c))
		cy := float64(out.At(0, 1, c))
		w := float64(out.At(0, 2, c))
		h := float64(out.At(0, 3, c))

		// Model pixels to capture pixels through the letterbox inverse.
		x1, y1 := lb.ToSource(cx-w/2, cy-h/2)
		x2, y2 := lb.ToSource(cx+w/2, cy+h/2)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		// Capture pixels to viewport pixels, then to geography.
		vx1, vy1 := x1*rx, y1*ry
		vx2, vy2 := x2*rx, y2*ry

		topLeft := s.project(vp, vx1, vy1)
		bottomRight := s.project(vp, vx2, vy2)
		center := s.project(vp, (vx1+vx2)/2, (vy1+vy2)/2)

		detections = append(detections, domain.Detection{
			ClassID:     classID,
			Score:       float64(best),
			ModelBox:    [4]float64{cx, cy, w, h},
			TopLeft:     topLeft,
			BottomRight: bottomRight,
			Center:      center,
		})
	}
	return detections
}

func (s *DetectService) project(vp domain.Viewport, px, py float64) domain.GeoPoint {
	return tilemath.PointInBounds(vp.Bounds, px/float64(vp.Width), py/float64(vp.Height))
}

func (s *DetectService) setState(state domain.PipelineState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
