package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultWorkOrderMethod — unary-метод модуля обслуживания. Запрос и ответ — google.protobuf.Struct.
const DefaultWorkOrderMethod = "/maintenance.v1.WorkOrderService/CreateFromRemediation"

type GRPCSink struct {
	conn    grpc.ClientConnInterface
	method  string
	timeout time.Duration
}

func NewGRPCSink(conn grpc.ClientConnInterface, method string, timeout time.Duration) *GRPCSink {
	if method == "" {
		method = DefaultWorkOrderMethod
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GRPCSink{conn: conn, method: method, timeout: timeout}
}

func (s *GRPCSink) Submit(ctx context.Context, req domain.RemediationRequest) error {
	// 1. Конвертируем заявку в Protobuf Struct через JSON-представление
	protoStruct, err := toStruct(req)
	if err != nil {
		return err
	}

	// 2. Защитный таймаут на уровне вызова, даже если у ReliabilityWrapper свой
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "source", sourceName, "idempotency-key", req.ID)

	// 3. Выполняем вызов
	reply := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, s.method, protoStruct, reply); err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return &ThrottleError{RetryAfter: time.Second, Cause: err}
		}
		return fmt.Errorf("work order call failed: %w", err)
	}

	// 4. Проверяем статус внутри ответа
	if v, ok := reply.GetFields()["error"]; ok && v.GetStringValue() != "" {
		return fmt.Errorf("maintenance module rejected remediation %s: %s", req.ID, v.GetStringValue())
	}
	return nil
}

func toStruct(req domain.RemediationRequest) (*structpb.Struct, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remediation: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal remediation: %w", err)
	}
	protoStruct, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}
	return protoStruct, nil
}
