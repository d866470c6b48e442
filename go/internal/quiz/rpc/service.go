package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/countdown"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// RoundManager is the subset of *rounds.Manager the RPC service drives
type RoundManager interface {
	Open(round rounds.Round) error
	Close(roundID uuid.UUID) error
	Start(roundID uuid.UUID) error
	Pause(roundID uuid.UUID) error
	Resume(roundID uuid.UUID) error
	Stop(roundID uuid.UUID) error
	Reset(roundID uuid.UUID) error
	Snapshot(roundID uuid.UUID) (rounds.RoundSnapshot, error)
	Snapshots() []rounds.RoundSnapshot
}

// Service implements RoundServiceHandler
type Service struct {
	rounds RoundManager
}

// NewService creates a new round RPC service
func NewService(manager RoundManager) *Service {
	return &Service{
		rounds: manager,
	}
}

// Verify interface compliance
var _ RoundServiceHandler = (*Service)(nil)

// Open creates a round. Request fields: name, duration_sec and an optional
// round_id (generated when absent).
func (s *Service) Open(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()

	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("name is required"))
	}

	durationSec := fields["duration_sec"].GetNumberValue()
	if durationSec != float64(int(durationSec)) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("duration_sec must be a whole number of seconds, got %v", durationSec))
	}

	roundID := uuid.New()
	if raw := fields["round_id"].GetStringValue(); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid round_id: %w", err))
		}
		roundID = parsed
	}

	round := rounds.Round{ID: roundID, Name: name, DurationSec: int(durationSec)}
	if err := s.rounds.Open(round); err != nil {
		return nil, toConnectError(err)
	}

	return s.snapshotResponse(roundID)
}

// Close stops a round and removes it
func (s *Service) Close(ctx context.Context, req *roundRequest) (*connect.Response[emptypb.Empty], error) {
	roundID, err := parseRoundID(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	if err := s.rounds.Close(roundID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *Service) Start(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	return s.control(req.Msg.GetValue(), "start", s.rounds.Start)
}

func (s *Service) Pause(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	return s.control(req.Msg.GetValue(), "pause", s.rounds.Pause)
}

func (s *Service) Resume(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	return s.control(req.Msg.GetValue(), "resume", s.rounds.Resume)
}

func (s *Service) Stop(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	return s.control(req.Msg.GetValue(), "stop", s.rounds.Stop)
}

func (s *Service) Reset(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	return s.control(req.Msg.GetValue(), "reset", s.rounds.Reset)
}

// Get returns the current state of a round
func (s *Service) Get(ctx context.Context, req *roundRequest) (*connect.Response[structpb.Struct], error) {
	roundID, err := parseRoundID(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	return s.snapshotResponse(roundID)
}

// List returns every open round ordered by name
func (s *Service) List(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	snaps := s.rounds.Snapshots()
	values := make([]interface{}, 0, len(snaps))
	for _, snap := range snaps {
		values = append(values, snapshotFields(snap))
	}

	list, err := structpb.NewList(values)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(list), nil
}

func (s *Service) control(rawID, action string, op func(uuid.UUID) error) (*connect.Response[structpb.Struct], error) {
	roundID, err := parseRoundID(rawID)
	if err != nil {
		return nil, err
	}
	if err := op(roundID); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("round_id", roundID.String()).
		Str("action", action).
		Msg("countdown action applied via rpc")
	return s.snapshotResponse(roundID)
}

func (s *Service) snapshotResponse(roundID uuid.UUID) (*connect.Response[structpb.Struct], error) {
	snap, err := s.rounds.Snapshot(roundID)
	if err != nil {
		return nil, toConnectError(err)
	}

	msg, err := structpb.NewStruct(snapshotFields(snap))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func snapshotFields(snap rounds.RoundSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"round_id":      snap.RoundID.String(),
		"name":          snap.Name,
		"state":         snap.State,
		"remaining_sec": snap.RemainingSec,
		"total_sec":     snap.TotalSec,
		"running":       snap.Running,
	}
}

func parseRoundID(raw string) (uuid.UUID, error) {
	roundID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid round_id: %w", err))
	}
	return roundID, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, rounds.ErrRoundNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, rounds.ErrRoundAlreadyOpen):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, countdown.ErrInvalidDuration):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		log.Error().Err(err).Msg("round rpc failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
