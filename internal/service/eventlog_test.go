package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ixmanager_bridge/internal/models"
)

func Test_toUTC(t *testing.T) {
	t.Parallel()

	if got := toUTC(time.Time{}); !got.IsZero() {
		t.Fatalf("zero time must stay zero, got %v", got)
	}
	in := time.Date(2025, time.August, 1, 12, 34, 56, 0, time.FixedZone("UTC+3", 3*3600))
	got := toUTC(in)
	if got.Location() != time.UTC || !got.Equal(in) {
		t.Fatalf("unexpected toUTC result: %v", got)
	}
}

func Test_normalizeAndValidateFilter(t *testing.T) {
	t.Parallel()

	fromLocal := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	toUTC := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       LogFilter
		wantFrom time.Time
		wantTo   time.Time
		wantType string
		wantErr  error
	}{
		{name: "empty filter", in: LogFilter{}},
		{
			name: "from after to",
			in: LogFilter{
				From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name:     "normalizes zone and type",
			in:       LogFilter{From: fromLocal, To: toUTC, Type: " state_change "},
			wantFrom: time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC),
			wantTo:   toUTC,
			wantType: models.EventStateChange,
		},
		{
			name:     "only lower bound",
			in:       LogFilter{From: toUTC, Type: "poll_failed"},
			wantFrom: toUTC,
			wantType: models.EventPollFailed,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotFrom, gotTo, gotType, err := normalizeAndValidateFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v; got %v", tc.wantErr, err)
			}
			if !gotFrom.Equal(tc.wantFrom) || !gotTo.Equal(tc.wantTo) || gotType != tc.wantType {
				t.Fatalf("got (%v, %v, %q); want (%v, %v, %q)", gotFrom, gotTo, gotType, tc.wantFrom, tc.wantTo, tc.wantType)
			}
		})
	}
}

func TestEventLogService_List_DelegatesNormalizedParams(t *testing.T) {
	t.Parallel()

	repo := &memEventRepo{listOut: []models.ChargerEvent{{EventID: "1"}}}
	svc := NewEventLogService(repo)

	from := time.Date(2025, time.October, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	to := time.Date(2025, time.October, 1, 12, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))

	out, err := svc.List(context.Background(), LogFilter{From: from, To: to, Type: "  command_failed "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "1" {
		t.Fatalf("unexpected events: %+v", out)
	}
	if !repo.gotFrom.Equal(time.Date(2025, time.October, 1, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("repo gotFrom=%v", repo.gotFrom)
	}
	if !repo.gotTo.Equal(time.Date(2025, time.October, 1, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("repo gotTo=%v", repo.gotTo)
	}
	if repo.gotType != models.EventCommandFailed {
		t.Fatalf("repo gotType=%q", repo.gotType)
	}
}

func TestEventLogService_List_ValidationError(t *testing.T) {
	t.Parallel()

	repo := &memEventRepo{}
	_, err := NewEventLogService(repo).List(context.Background(), LogFilter{
		From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange; got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("repo should not be called on validation error, calls=%d", repo.calls)
	}
}

func TestEventLogService_List_RepoErrorPropagation(t *testing.T) {
	t.Parallel()

	repo := &memEventRepo{listErr: errors.New("db down")}
	_, err := NewEventLogService(repo).List(context.Background(), LogFilter{})
	if !errors.Is(err, repo.listErr) {
		t.Fatalf("expected repo error to propagate; got %v", err)
	}
}
