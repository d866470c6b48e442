package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RoundServiceName is the fully-qualified name of the RoundService service.
const RoundServiceName = "quizclock.v1.RoundService"

// Procedure paths, in the form "/<service>/<method>".
const (
	RoundServiceOpenProcedure   = "/quizclock.v1.RoundService/Open"
	RoundServiceCloseProcedure  = "/quizclock.v1.RoundService/Close"
	RoundServiceStartProcedure  = "/quizclock.v1.RoundService/Start"
	RoundServicePauseProcedure  = "/quizclock.v1.RoundService/Pause"
	RoundServiceResumeProcedure = "/quizclock.v1.RoundService/Resume"
	RoundServiceStopProcedure   = "/quizclock.v1.RoundService/Stop"
	RoundServiceResetProcedure  = "/quizclock.v1.RoundService/Reset"
	RoundServiceGetProcedure    = "/quizclock.v1.RoundService/Get"
	RoundServiceListProcedure   = "/quizclock.v1.RoundService/List"
)

type (
	roundRequest  = connect.Request[wrapperspb.StringValue]
	roundResponse = connect.Response[structpb.Struct]
)

// RoundServiceHandler is implemented by the round RPC service.
type RoundServiceHandler interface {
	Open(context.Context, *connect.Request[structpb.Struct]) (*roundResponse, error)
	Close(context.Context, *roundRequest) (*connect.Response[emptypb.Empty], error)
	Start(context.Context, *roundRequest) (*roundResponse, error)
	Pause(context.Context, *roundRequest) (*roundResponse, error)
	Resume(context.Context, *roundRequest) (*roundResponse, error)
	Stop(context.Context, *roundRequest) (*roundResponse, error)
	Reset(context.Context, *roundRequest) (*roundResponse, error)
	Get(context.Context, *roundRequest) (*roundResponse, error)
	List(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error)
}

// NewRoundServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewRoundServiceHandler(svc RoundServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	withSchema := func(name string) []connect.HandlerOption {
		return append([]connect.HandlerOption{connect.WithSchema(roundServiceMethods.ByName(protoName(name)))}, opts...)
	}
	control := func(procedure string, fn func(context.Context, *roundRequest) (*roundResponse, error)) http.Handler {
		return connect.NewUnaryHandler(procedure, fn, withSchema(procedure)...)
	}

	handlers := map[string]http.Handler{
		RoundServiceOpenProcedure:   connect.NewUnaryHandler(RoundServiceOpenProcedure, svc.Open, withSchema(RoundServiceOpenProcedure)...),
		RoundServiceCloseProcedure:  connect.NewUnaryHandler(RoundServiceCloseProcedure, svc.Close, withSchema(RoundServiceCloseProcedure)...),
		RoundServiceStartProcedure:  control(RoundServiceStartProcedure, svc.Start),
		RoundServicePauseProcedure:  control(RoundServicePauseProcedure, svc.Pause),
		RoundServiceResumeProcedure: control(RoundServiceResumeProcedure, svc.Resume),
		RoundServiceStopProcedure:   control(RoundServiceStopProcedure, svc.Stop),
		RoundServiceResetProcedure:  control(RoundServiceResetProcedure, svc.Reset),
		RoundServiceGetProcedure:    control(RoundServiceGetProcedure, svc.Get),
		RoundServiceListProcedure:   connect.NewUnaryHandler(RoundServiceListProcedure, svc.List, withSchema(RoundServiceListProcedure)...),
	}

	return "/" + RoundServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// protoName turns "/quizclock.v1.RoundService/Open" into "Open".
func protoName(procedure string) protoreflect.Name {
	return protoreflect.Name(procedure[strings.LastIndex(procedure, "/")+1:])
}

// RoundServiceClient calls RoundService over connect.
type RoundServiceClient struct {
	open   *connect.Client[structpb.Struct, structpb.Struct]
	close  *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	start  *connect.Client[wrapperspb.StringValue, structpb.Struct]
	pause  *connect.Client[wrapperspb.StringValue, structpb.Struct]
	resume *connect.Client[wrapperspb.StringValue, structpb.Struct]
	stop   *connect.Client[wrapperspb.StringValue, structpb.Struct]
	reset  *connect.Client[wrapperspb.StringValue, structpb.Struct]
	get    *connect.Client[wrapperspb.StringValue, structpb.Struct]
	list   *connect.Client[emptypb.Empty, structpb.ListValue]
}

// NewRoundServiceClient constructs a client for RoundService at baseURL
// (for example, http://localhost:8080).
func NewRoundServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RoundServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	control := func(procedure string) *connect.Client[wrapperspb.StringValue, structpb.Struct] {
		return connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return &RoundServiceClient{
		open:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RoundServiceOpenProcedure, opts...),
		close:  connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+RoundServiceCloseProcedure, opts...),
		start:  control(RoundServiceStartProcedure),
		pause:  control(RoundServicePauseProcedure),
		resume: control(RoundServiceResumeProcedure),
		stop:   control(RoundServiceStopProcedure),
		reset:  control(RoundServiceResetProcedure),
		get:    control(RoundServiceGetProcedure),
		list:   connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+RoundServiceListProcedure, opts...),
	}
}

func (c *RoundServiceClient) Open(ctx context.Context, req *connect.Request[structpb.Struct]) (*roundResponse, error) {
	return c.open.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Close(ctx context.Context, req *roundRequest) (*connect.Response[emptypb.Empty], error) {
	return c.close.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Start(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.start.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Pause(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.pause.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Resume(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.resume.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Stop(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Reset(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.reset.CallUnary(ctx, req)
}

func (c *RoundServiceClient) Get(ctx context.Context, req *roundRequest) (*roundResponse, error) {
	return c.get.CallUnary(ctx, req)
}

func (c *RoundServiceClient) List(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	return c.list.CallUnary(ctx, req)
}
