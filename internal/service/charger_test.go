package service

import (
	"context"
	"errors"
	"testing"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/models"
)

// fakeDispatcher records dispatched commands and serves a fixed snapshot.
type fakeDispatcher struct {
	snap     models.Snapshot
	err      error
	commands []models.Command
}

func (d *fakeDispatcher) Dispatch(_ context.Context, cmd models.Command) (models.CommandAck, error) {
	d.commands = append(d.commands, cmd)
	if d.err != nil {
		return models.CommandAck{}, d.err
	}
	return models.CommandAck{Kind: cmd.Kind}, nil
}

func (d *fakeDispatcher) Latest() models.Snapshot { return d.snap }

func TestChargerService_SetMaximumCurrent(t *testing.T) {
	tests := []struct {
		name    string
		cable   models.CableType
		amps    float64
		want    float64
		wantErr error
	}{
		{name: "below minimum", cable: models.Cable16A, amps: 5, wantErr: ErrCurrentTooLow},
		{name: "minimum", cable: models.Cable16A, amps: 6, want: 6},
		{name: "rounded to step", cable: models.Cable16A, amps: 10.6, want: 11},
		{name: "clamped to 16A cable", cable: models.Cable16A, amps: 25, want: 16},
		{name: "32A cable allows 25", cable: models.Cable32A, amps: 25, want: 25},
		{name: "clamped to 32A cable", cable: models.Cable32A, amps: 40, want: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			events := &memEventRepo{}
			svc := NewChargerService(d, events, tt.cable, nil)

			got, err := svc.SetMaximumCurrent(context.Background(), tt.amps)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, models.ErrInvalidValue) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				if len(d.commands) != 0 {
					t.Fatalf("rejected value must not be dispatched")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("applied: want %v, got %v", tt.want, got)
			}
			if len(d.commands) != 1 || d.commands[0].Kind != models.CommandSetMaximumCurrent || d.commands[0].Amps != tt.want {
				t.Fatalf("unexpected dispatch: %+v", d.commands)
			}
			if events.count(models.EventCommand) != 1 {
				t.Fatalf("expected COMMAND event, got %v", events.types())
			}
		})
	}
}

func TestChargerService_SetTargetCurrent_ClampsToReportedMaximum(t *testing.T) {
	tests := []struct {
		name string
		snap models.Snapshot
		amps float64
		want float64
	}{
		{name: "no data yet", snap: models.Snapshot{}, amps: 14, want: 14},
		{name: "under reported max", snap: models.Snapshot{HasData: true, Status: models.ChargerStatus{MaximumCurrentA: 16}}, amps: 12, want: 12},
		{name: "above reported max", snap: models.Snapshot{HasData: true, Status: models.ChargerStatus{MaximumCurrentA: 10}}, amps: 14, want: 10},
		{name: "stale max still applies", snap: models.Snapshot{HasData: true, Stale: true, Status: models.ChargerStatus{MaximumCurrentA: 8}}, amps: 14, want: 8},
		{name: "cable before reported max", snap: models.Snapshot{HasData: true, Status: models.ChargerStatus{MaximumCurrentA: 32}}, amps: 30, want: 16},
		{name: "reported max unusable", snap: models.Snapshot{HasData: true, Status: models.ChargerStatus{MaximumCurrentA: 0}}, amps: 12, want: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{snap: tt.snap}
			svc := NewChargerService(d, &memEventRepo{}, models.Cable16A, nil)

			got, err := svc.SetTargetCurrent(context.Background(), tt.amps)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || d.commands[0].Amps != tt.want {
				t.Fatalf("applied: want %v, got %v (sent %+v)", tt.want, got, d.commands)
			}
		})
	}

	svc := NewChargerService(&fakeDispatcher{}, &memEventRepo{}, models.Cable16A, nil)
	if _, err := svc.SetTargetCurrent(context.Background(), 3); !errors.Is(err, ErrCurrentTooLow) {
		t.Fatalf("want ErrCurrentTooLow, got %v", err)
	}
}

func TestChargerService_SwitchCommands(t *testing.T) {
	d := &fakeDispatcher{}
	events := &memEventRepo{}
	svc := NewChargerService(d, events, models.Cable16A, nil)
	ctx := context.Background()

	if err := svc.StartCharging(ctx); err != nil {
		t.Fatalf("StartCharging: %v", err)
	}
	if err := svc.StopCharging(ctx); err != nil {
		t.Fatalf("StopCharging: %v", err)
	}
	if err := svc.SetSinglePhase(ctx, true); err != nil {
		t.Fatalf("SetSinglePhase: %v", err)
	}

	want := []models.Command{models.StartCharging(), models.StopCharging(), models.SetSinglePhase(true)}
	if len(d.commands) != len(want) {
		t.Fatalf("want %d commands, got %d", len(want), len(d.commands))
	}
	for i := range want {
		if d.commands[i] != want[i] {
			t.Fatalf("command %d: want %+v, got %+v", i, want[i], d.commands[i])
		}
	}
	if events.count(models.EventCommand) != 3 {
		t.Fatalf("expected 3 COMMAND events, got %v", events.types())
	}
}

func TestChargerService_FailedCommandIsLogged(t *testing.T) {
	rejected := &ixmanager.Error{Op: "send command", Kind: ixmanager.ErrRejected, StatusCode: 423}
	d := &fakeDispatcher{err: rejected}
	events := &memEventRepo{}
	svc := NewChargerService(d, events, models.Cable16A, nil)

	err := svc.StartCharging(context.Background())
	if !errors.Is(err, ixmanager.ErrRejected) {
		t.Fatalf("want ErrRejected, got %v", err)
	}
	if events.count(models.EventCommandFailed) != 1 || events.count(models.EventCommand) != 0 {
		t.Fatalf("unexpected events: %v", events.types())
	}
	meta, _ := events.appended[0].Metadata.(map[string]any)
	if meta["kind"] != string(models.CommandStartCharging) || meta["err"] == nil {
		t.Fatalf("unexpected metadata: %#v", events.appended[0].Metadata)
	}
}

func TestChargerService_EventLogFailureDoesNotFailCommand(t *testing.T) {
	d := &fakeDispatcher{}
	svc := NewChargerService(d, &memEventRepo{appendErr: errors.New("disk full")}, models.Cable16A, nil)

	if err := svc.StopCharging(context.Background()); err != nil {
		t.Fatalf("StopCharging: %v", err)
	}
}
