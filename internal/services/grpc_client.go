package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"YOGA_TRAINER/posecoach/internal/models"
)

const (
	predictMethod     = "/yoga.PoseClassifier/Predict"
	classifierService = "yoga.PoseClassifier"
)

// GRPCClassifier talks to the inference backend over gRPC. Requests and
// responses are google.protobuf.Struct messages, so no generated stubs
// are needed on this side.
type GRPCClassifier struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	url     string
	timeout time.Duration
}

func NewGRPCClassifier(url string, timeout time.Duration) (*GRPCClassifier, error) {
	log.Printf("Connecting to gRPC inference at %s", url)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(50*1024*1024),
			grpc.MaxCallSendMsgSize(50*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.Dial(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to gRPC inference at %s: %w", url, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &GRPCClassifier{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		url:     url,
		timeout: timeout,
	}, nil
}

func (gc *GRPCClassifier) Classify(ctx context.Context, frame models.Frame) (models.PoseObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, gc.timeout)
	defer cancel()

	req, err := predictRequest(frame)
	if err != nil {
		return models.PoseObservation{}, err
	}
	resp := &structpb.Struct{}
	if err := gc.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not classify frame: %w", err)
	}
	return observation(predictResponse(resp))
}

func predictRequest(frame models.Frame) (*structpb.Struct, error) {
	landmarks := make([]interface{}, len(frame.Landmarks))
	for i, v := range frame.Landmarks {
		landmarks[i] = v
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"image":           base64.StdEncoding.EncodeToString(frame.Data),
		"sequence_number": float64(frame.SequenceNumber),
		"timestamp_ms":    float64(frame.Timestamp.UnixMilli()),
		"landmarks":       landmarks,
	})
	if err != nil {
		return nil, fmt.Errorf("could not build predict request: %w", err)
	}
	return req, nil
}

func predictResponse(s *structpb.Struct) models.PredictResponse {
	f := s.GetFields()
	return models.PredictResponse{
		Pose:          f["pose"].GetStringValue(),
		SanskritName:  f["sanskrit_name"].GetStringValue(),
		EnglishName:   f["english_name"].GetStringValue(),
		Confidence:    f["confidence"].GetNumberValue(),
		Error:         f["error"].GetStringValue(),
		InferenceTime: f["inference_time_ms"].GetNumberValue(),
	}
}

// Health uses the standard grpc.health.v1 service of the backend.
func (gc *GRPCClassifier) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := gc.health.Check(ctx, &healthpb.HealthCheckRequest{Service: classifierService})
	if err != nil {
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (gc *GRPCClassifier) Close() error {
	if gc.conn != nil {
		return gc.conn.Close()
	}
	return nil
}
