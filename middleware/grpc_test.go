package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
)

// startGRPC serves processor over an in-memory listener and returns a
// connected client connection.
func startGRPC(t *testing.T, processor pipeline.Processor, recorder RequestRecorder) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(processor, nil, nil, recorder)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dialing bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGRPC_Classify(t *testing.T) {
	rec := &countingRecorder{}
	client := NewClassifierClient(startGRPC(t, realProcessor(), rec))

	result, err := client.Classify(testContext(t), &ClassifyRequest{Text: "SSN 123-45-6789"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.RunID == "" {
		t.Error("Expected a run id")
	}
	if len(result.Policy) != 1 || result.Policy[0].SensitiveTypeID != classify.SITUSSSN {
		t.Errorf("Expected one SSN policy record, got %+v", result.Policy)
	}
	if len(result.Matches) != 1 || len(result.Matches[0].Samples) != 0 {
		t.Errorf("Expected one match without samples, got %+v", result.Matches)
	}

	if rec.counts["grpc/OK"] != 1 {
		t.Errorf("Expected 1 OK grpc request, got %v", rec.counts)
	}
}

func TestGRPC_Classify_TenantMetadata(t *testing.T) {
	mp := &mockProcessor{}
	client := NewClassifierClient(startGRPC(t, mp, nil))

	ctx := metadata.AppendToOutgoingContext(testContext(t), "x-tenant-id", "tenant-md")
	if _, err := client.Classify(ctx, &ClassifyRequest{Text: "x"}); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if mp.lastReq.TenantID != "tenant-md" {
		t.Errorf("Expected tenant from metadata, got %q", mp.lastReq.TenantID)
	}
}

func TestGRPC_Classify_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{name: "too large", err: fmt.Errorf("%w: 9 bytes", pipeline.ErrTextTooLarge), wantCode: codes.InvalidArgument},
		{name: "deadline", err: fmt.Errorf("classification failed: %w", context.DeadlineExceeded), wantCode: codes.DeadlineExceeded},
		{name: "internal", err: errors.New("boom"), wantCode: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockProcessor{processFunc: func(context.Context, pipeline.ProcessRequest) (*pipeline.ProcessResult, error) {
				return nil, tt.err
			}}
			client := NewClassifierClient(startGRPC(t, mp, nil))

			_, err := client.Classify(testContext(t), &ClassifyRequest{Text: "x"})
			if got := status.Code(err); got != tt.wantCode {
				t.Errorf("Expected code %s, got %s (%v)", tt.wantCode, got, err)
			}
		})
	}
}

func TestGRPC_Validate(t *testing.T) {
	mp := &mockProcessor{set: classify.DetectorSet{Detectors: classify.SamplePresets()}}
	client := NewClassifierClient(startGRPC(t, mp, nil))
	ctx := testContext(t)

	resp, err := client.Validate(ctx, &ValidateRequest{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !resp.Valid || resp.Detectors != len(classify.SamplePresets()) {
		t.Errorf("Expected the catalog to be valid, got %+v", resp)
	}

	set := classify.DetectorSet{Detectors: []classify.Detector{{ID: "bad", Pattern: classify.PatternDescriptor{Source: "(["}}}}
	resp, err = client.Validate(ctx, &ValidateRequest{Detectors: &set})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if resp.Valid || len(resp.Invalid) != 1 || resp.Invalid[0].ID != "bad" {
		t.Errorf("Expected bad to be reported, got %+v", resp)
	}
}

func TestGRPC_Health(t *testing.T) {
	conn := startGRPC(t, &mockProcessor{}, nil)
	hc := healthpb.NewHealthClient(conn)

	for _, service := range []string{"", ClassifierServiceName} {
		resp, err := hc.Check(testContext(t), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %s, want SERVING", service, resp.GetStatus())
		}
	}
}

func TestJSONCodec(t *testing.T) {
	var c jsonCodec
	if c.Name() != "json" {
		t.Errorf("Name = %q, want json", c.Name())
	}

	data, err := c.Marshal(&ClassifyRequest{Text: "hello", TenantID: "t"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out ClassifyRequest
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Text != "hello" || out.TenantID != "t" {
		t.Errorf("Unexpected decoded request %+v", out)
	}
}
