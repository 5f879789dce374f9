package docs

import (
	"time"

	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// CameraResponse is one camera with its live feed state
type CameraResponse struct {
	ID        string    `json:"id" example:"lobby-1"`
	Name      string    `json:"name" example:"Lobby entrance"`
	Location  string    `json:"location,omitempty" example:"building A"`
	Source    string    `json:"source,omitempty" example:"rtsp://10.0.0.12/stream1"`
	Status    string    `json:"status" example:"online"`
	UpdatedAt time.Time `json:"updated_at"`
	Online    bool      `json:"online" example:"true"`
	Viewers   int       `json:"viewers" example:"2"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total" example:"1"`
}

type RegisterCameraRequest struct {
	ID       string `json:"id" example:"lobby-1"`
	Name     string `json:"name" example:"Lobby entrance"`
	Location string `json:"location" example:"building A"`
	Source   string `json:"source" example:"rtsp://10.0.0.12/stream1"`
}

// ConsumerStats is the lag view of one frame consumer
type ConsumerStats struct {
	Delivered        uint64 `json:"delivered" example:"1200"`
	TotalDrops       uint64 `json:"total_drops" example:"14"`
	ConsecutiveDrops uint64 `json:"consecutive_drops" example:"0"`
	Queued           int    `json:"queued" example:"1"`
	LastConsumedSeq  uint64 `json:"last_consumed_seq" example:"1213"`
	IsIdle           bool   `json:"is_idle" example:"false"`
}

type CameraStatsResponse struct {
	Online    bool                     `json:"online" example:"true"`
	LastSeq   uint64                   `json:"last_seq" example:"1214"`
	Consumers map[string]ConsumerStats `json:"consumers"`
}

type FrameResponse struct {
	CameraID   string    `json:"camera_id" example:"lobby-1"`
	Seq        uint64    `json:"seq" example:"1215"`
	CapturedAt time.Time `json:"captured_at"`
}

type AttendanceEvent struct {
	ID         string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	IdentityID string    `json:"identity_id" example:"student-042"`
	CameraID   string    `json:"camera_id" example:"lobby-1"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence" example:"0.82"`
}

type AttendanceListResponse struct {
	Events []AttendanceEvent `json:"events"`
	Total  int               `json:"total" example:"1"`
}

type Alert struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CameraID      string    `json:"camera_id" example:"lobby-1"`
	TrackID       uint64    `json:"track_id" example:"7"`
	IdentityID    string    `json:"identity_id,omitempty" example:"student-042"`
	Label         string    `json:"label" example:"falling"`
	Confidence    float64   `json:"confidence" example:"0.91"`
	Severity      string    `json:"severity" example:"high"`
	LowConfidence bool      `json:"low_confidence" example:"false"`
	Timestamp     time.Time `json:"timestamp"`
	EvidenceRef   string    `json:"evidence_ref,omitempty" example:"/var/lib/vigia/evidence/lobby-1-7.mjpeg"`
}

type AlertListResponse struct {
	Alerts []Alert `json:"alerts"`
	Total  int     `json:"total" example:"1"`
}

type IdentityStatsResponse struct {
	Identities int     `json:"identities" example:"312"`
	Embeddings int     `json:"embeddings" example:"940"`
	Threshold  float64 `json:"threshold" example:"0.4"`
}

type ErrorResponse struct {
	Code    string `json:"code" example:"CAMERA_NOT_FOUND"`
	Message string `json:"message" example:"Camera is not registered"`
}

var (
	errUnauthorized  = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing ingest token"}, "401", "Unauthorized")
	errCameraUnknown = response.New(ErrorResponse{Code: "CAMERA_NOT_FOUND", Message: "Camera is not registered"}, "404", "Not Found")
	errValidation    = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errInternal      = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	ingestSecurity   = []map[string][]string{{"IngestToken": {}}}
)

func cameraID() *parameter.Parameter {
	return parameter.StrParam("id", parameter.Path, parameter.WithRequired(), parameter.WithDescription("Camera id"))
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Vigia API",
		Version:     "v1.0.0",
		Description: "Camera frame ingest, live overlays, attendance and activity alerts",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			"/cameras",
			endpoint.WithTags("Cameras"),
			endpoint.WithSummary("List cameras"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CameraListResponse{}, "200", "Registered cameras with live state"),
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/cameras",
			endpoint.WithTags("Cameras"),
			endpoint.WithSummary("Register a camera"),
			endpoint.WithBody(RegisterCameraRequest{}),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CameraResponse{}, "201", "Camera registered"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "CAMERA_EXISTS", Message: "Camera is already registered"}, "409", "Conflict"),
				errValidation,
			}),
			endpoint.WithSecurity(ingestSecurity),
		),

		endpoint.New(
			endpoint.GET,
			"/cameras/{id}/stats",
			endpoint.WithTags("Cameras"),
			endpoint.WithSummary("Frame hub counters for a camera"),
			endpoint.WithDescription("Per consumer delivered, dropped and queued frame counts"),
			endpoint.WithParams(cameraID()),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CameraStatsResponse{}, "200", "Hub snapshot"),
			}),
			endpoint.WithErrors([]response.Response{errCameraUnknown}),
		),

		endpoint.New(
			endpoint.POST,
			"/cameras/{id}/frames",
			endpoint.WithTags("Ingest"),
			endpoint.WithSummary("Publish a single frame"),
			endpoint.WithDescription("The request body is the encoded image. X-Captured-At (RFC3339) overrides the capture time."),
			endpoint.WithParams(cameraID()),
			endpoint.WithConsume([]mime.MIME{mime.MIME("image/jpeg"), mime.MIME("application/octet-stream")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FrameResponse{}, "202", "Frame accepted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errCameraUnknown,
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted frame"}, "422", "Unprocessable Entity"),
				errInternal,
			}),
			endpoint.WithSecurity(ingestSecurity),
		),

		endpoint.New(
			endpoint.GET,
			"/cameras/{id}/attendance",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("Recent attendance events"),
			endpoint.WithParams(
				cameraID(),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("1-500, default 50")),
			),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AttendanceListResponse{}, "200", "Newest first"),
			}),
			endpoint.WithErrors([]response.Response{errCameraUnknown, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/cameras/{id}/alerts",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("Recent activity alerts"),
			endpoint.WithParams(
				cameraID(),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("1-500, default 50")),
			),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AlertListResponse{}, "200", "Newest first"),
			}),
			endpoint.WithErrors([]response.Response{errCameraUnknown, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/identities/reload",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Reload enrolled identities"),
			endpoint.WithDescription("Replaces the in-memory matcher snapshot with the database enrollment"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentityStatsResponse{}, "200", "Store size after reload"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errInternal}),
			endpoint.WithSecurity(ingestSecurity),
		),

		endpoint.New(
			endpoint.GET,
			"/ws/ingest/{id}",
			endpoint.WithTags("Websocket"),
			endpoint.WithSummary("Producer socket"),
			endpoint.WithDescription("Every binary message is one frame. Closing the socket marks the camera offline. Browsers pass the token as ?token="),
			endpoint.WithParams(cameraID()),
			endpoint.WithErrors([]response.Response{errUnauthorized, errCameraUnknown}),
			endpoint.WithSecurity(ingestSecurity),
		),

		endpoint.New(
			endpoint.GET,
			"/ws/view/{id}",
			endpoint.WithTags("Websocket"),
			endpoint.WithSummary("Viewer socket"),
			endpoint.WithDescription("Binary messages are raw frames. Text messages are JSON events: overlay, alert.triggered, camera.status"),
			endpoint.WithParams(cameraID()),
			endpoint.WithErrors([]response.Response{errCameraUnknown}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
