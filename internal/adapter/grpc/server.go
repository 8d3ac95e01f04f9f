package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/usecase/issuance"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
	"github.com/simaogato/lnmomo-backend/internal/usecase/sweep"
)

// ServiceName is the fully qualified name of the admin service
const ServiceName = "lnmomo.v1.Reconciliation"

// ReconciliationServer is the admin API. Messages are protobuf well-known
// types so no generated stubs are needed.
type ReconciliationServer interface {
	Check(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Sweep(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Issue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetTransaction(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes ReconciliationServer to grpc.Server
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReconciliationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Check", ReconciliationServer.Check),
		unary("Sweep", ReconciliationServer.Sweep),
		unary("Issue", ReconciliationServer.Issue),
		unary("GetTransaction", ReconciliationServer.GetTransaction),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lnmomo/v1/reconciliation.proto",
}

// RegisterReconciliationServer registers srv on s
func RegisterReconciliationServer(s grpc.ServiceRegistrar, srv ReconciliationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the wire name of method, e.g. /lnmomo.v1.Reconciliation/Check
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the method descriptor the way protoc-gen-go-grpc does,
// decoding into a fresh *Req and routing through the interceptor chain
func unary[Req any](method string, call func(ReconciliationServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReconciliationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ReconciliationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Issuer creates invoices
type Issuer interface {
	Issue(ctx context.Context, input issuance.IssueInput) (*issuance.IssueResult, error)
}

// Reconciler is the on-demand driver
type Reconciler interface {
	Check(ctx context.Context, id uuid.UUID) (*reconcile.Outcome, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

// Sweeper is the batch driver
type Sweeper interface {
	Run(ctx context.Context) (*sweep.Report, error)
}

// Server implements ReconciliationServer on top of the usecases
type Server struct {
	Issuer     Issuer
	Reconciler Reconciler
	Sweeper    Sweeper

	now func() time.Time
}

// NewServer creates a new gRPC server instance
func NewServer(issuer Issuer, reconciler Reconciler, sweeper Sweeper) *Server {
	return &Server{
		Issuer:     issuer,
		Reconciler: reconciler,
		Sweeper:    sweeper,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Check handles the Check RPC
func (s *Server) Check(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseID(req.GetValue())
	if err != nil {
		return nil, err
	}

	out, err := s.Reconciler.Check(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	fields := map[string]any{
		"id":            out.Transaction.ID.String(),
		"initialStatus": string(out.InitialStatus),
		"status":        string(out.Status()),
		"changed":       out.Changed(),
		"skipped":       out.Skipped,
		"message":       out.Message,
	}
	if out.PaidAt != nil {
		fields["paidAt"] = out.PaidAt.Format(time.RFC3339Nano)
	}
	if out.MobileMoneyReference != "" {
		fields["mobileMoneyReference"] = out.MobileMoneyReference
	}
	return newStruct(fields)
}

// Sweep handles the Sweep RPC
func (s *Server) Sweep(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.Sweeper.Run(ctx)
	if err != nil && report == nil {
		return nil, mapError(err)
	}
	return toStruct(report)
}

// Issue handles the Issue RPC.
// Expects {"phone": string, "amount": string|number, "networkId": number}.
func (s *Server) Issue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	amount, err := parseAmount(fields["amount"])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount format: %v", err)
	}

	input := issuance.IssueInput{
		Phone:     fields["phone"].GetStringValue(),
		Amount:    amount,
		NetworkID: int(fields["networkId"].GetNumberValue()),
	}

	result, err := s.Issuer.Issue(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	return newStruct(map[string]any{
		"transactionId": result.TransactionID.String(),
		"invoiceId":     result.InvoiceID,
		"invoiceString": result.InvoiceString,
		"amountCrypto":  result.AmountCrypto.String(),
		"expiresAt":     result.ExpiresAt.Format(time.RFC3339),
		"isSimulated":   result.IsSimulated,
	})
}

// GetTransaction handles the GetTransaction RPC
func (s *Server) GetTransaction(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := parseID(req.GetValue())
	if err != nil {
		return nil, err
	}

	tx, err := s.Reconciler.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	fields := map[string]any{
		"id":               tx.ID.String(),
		"status":           string(tx.Status),
		"recipientPhone":   tx.RecipientPhone,
		"amount":           tx.Amount.String(),
		"currency":         tx.Currency,
		"amountCrypto":     tx.AmountCrypto.String(),
		"invoiceId":        tx.InvoiceID,
		"invoiceSource":    string(tx.InvoiceSource),
		"expiresAt":        tx.ExpiresAt.Format(time.RFC3339),
		"secondsRemaining": int64(tx.TimeRemaining(s.now()) / time.Second),
		"createdAt":        tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.NetworkID != 0 {
		fields["networkId"] = tx.NetworkID
	}
	if tx.PaidAt != nil {
		fields["paidAt"] = tx.PaidAt.Format(time.RFC3339Nano)
	}
	if tx.MobileMoneyReference != "" {
		fields["mobileMoneyReference"] = tx.MobileMoneyReference
	}
	return newStruct(fields)
}

func parseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, status.Error(codes.InvalidArgument, "transaction ID is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid transaction ID format: %v", err)
	}
	return id, nil
}

func parseAmount(v *structpb.Value) (decimal.Decimal, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(kind.StringValue)
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported kind %T", kind)
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// toStruct converts any JSON-tagged value into a Struct
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrUpstreamAuth), errors.Is(err, domain.ErrUpstreamTransient):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Error(codes.Internal, err.Error())
}
