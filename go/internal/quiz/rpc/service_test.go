package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/MarvinJWendt/testza"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func newTestClient(t *testing.T, opts ...connect.ClientOption) (*RoundServiceClient, *rounds.Manager) {
	t.Helper()
	manager := rounds.NewManager(rounds.WithClock(clockwork.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(NewRoundServiceHandler(NewService(manager)))
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		manager.Shutdown()
		cancel()
		server.Close()
	})
	return NewRoundServiceClient(server.Client(), server.URL, opts...), manager
}

func openRequest(t *testing.T, fields map[string]interface{}) *connect.Request[structpb.Struct] {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	testza.AssertNoError(t, err)
	return connect.NewRequest(msg)
}

func idRequest(id string) *connect.Request[wrapperspb.StringValue] {
	return connect.NewRequest(wrapperspb.String(id))
}

func TestOpenStartAndGet(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	roundID := uuid.New()

	opened, err := client.Open(ctx, openRequest(t, map[string]interface{}{
		"round_id":     roundID.String(),
		"name":         "Final",
		"duration_sec": 5,
	}))
	testza.AssertNoError(t, err)
	fields := opened.Msg.GetFields()
	testza.AssertEqual(t, roundID.String(), fields["round_id"].GetStringValue())
	testza.AssertEqual(t, "IDLE", fields["state"].GetStringValue())
	testza.AssertEqual(t, float64(5), fields["remaining_sec"].GetNumberValue())

	started, err := client.Start(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "RUNNING", started.Msg.GetFields()["state"].GetStringValue())
	testza.AssertTrue(t, started.Msg.GetFields()["running"].GetBoolValue())

	paused, err := client.Pause(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "PAUSED", paused.Msg.GetFields()["state"].GetStringValue())

	resumed, err := client.Resume(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "RUNNING", resumed.Msg.GetFields()["state"].GetStringValue())

	_, err = client.Stop(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)

	reset, err := client.Reset(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "IDLE", reset.Msg.GetFields()["state"].GetStringValue())

	got, err := client.Get(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "Final", got.Msg.GetFields()["name"].GetStringValue())
}

func TestOpenGeneratesRoundID(t *testing.T) {
	client, manager := newTestClient(t, connect.WithProtoJSON())

	opened, err := client.Open(context.Background(), openRequest(t, map[string]interface{}{
		"name":         "Warmup",
		"duration_sec": 30,
	}))
	testza.AssertNoError(t, err)

	roundID, err := uuid.Parse(opened.Msg.GetFields()["round_id"].GetStringValue())
	testza.AssertNoError(t, err)
	snap, err := manager.Snapshot(roundID)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, 30, snap.TotalSec)
}

func TestErrorCodes(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	roundID := uuid.New()

	_, err := client.Open(ctx, openRequest(t, map[string]interface{}{
		"round_id":     roundID.String(),
		"name":         "Semi",
		"duration_sec": 10,
	}))
	testza.AssertNoError(t, err)

	_, err = client.Open(ctx, openRequest(t, map[string]interface{}{
		"round_id":     roundID.String(),
		"name":         "Semi again",
		"duration_sec": 10,
	}))
	testza.AssertEqual(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = client.Open(ctx, openRequest(t, map[string]interface{}{"name": "Zero", "duration_sec": 0}))
	testza.AssertEqual(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Open(ctx, openRequest(t, map[string]interface{}{"name": "Fraction", "duration_sec": 1.5}))
	testza.AssertEqual(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Open(ctx, openRequest(t, map[string]interface{}{"duration_sec": 10}))
	testza.AssertEqual(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Start(ctx, idRequest(uuid.NewString()))
	testza.AssertEqual(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.Get(ctx, idRequest("not-a-uuid"))
	testza.AssertEqual(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.Close(ctx, idRequest(roundID.String()))
	testza.AssertNoError(t, err)
	_, err = client.Get(ctx, idRequest(roundID.String()))
	testza.AssertEqual(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestListOrdersByName(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		_, err := client.Open(ctx, openRequest(t, map[string]interface{}{"name": name, "duration_sec": 60}))
		testza.AssertNoError(t, err)
	}

	list, err := client.List(ctx, connect.NewRequest(&emptypb.Empty{}))
	testza.AssertNoError(t, err)

	var names []string
	for _, v := range list.Msg.GetValues() {
		names = append(names, v.GetStructValue().GetFields()["name"].GetStringValue())
	}
	testza.AssertEqual(t, []string{"Alpha", "Bravo", "Charlie"}, names)
}

func TestServiceDescriptorIsRegistered(t *testing.T) {
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(RoundServiceName)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, RoundServiceName, string(desc.FullName()))
	testza.AssertEqual(t, 9, roundServiceMethods.Len())
	testza.AssertNotNil(t, roundServiceMethods.ByName("Reset"))
}
