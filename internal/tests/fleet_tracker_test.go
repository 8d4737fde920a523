package tests

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// ──────────────────────────────────────────────
// 4. FLEET RECONCILIATION AND SELECTION
// ──────────────────────────────────────────────

func vehicle(id, plate, driver string, status domain.VehicleStatus, lat, lng float64) domain.Vehicle {
	return domain.Vehicle{
		ID:          id,
		PlateNumber: plate,
		DriverName:  driver,
		Status:      status,
		Location:    domain.Location{Lat: lat, Lng: lng},
	}
}

var (
	vehicleA = vehicle("A", "KAA-1111", "Lin", domain.VehicleStatusIdle, 22.62, 120.30)
	vehicleB = vehicle("B", "KBB-2222", "Wang", domain.VehicleStatusBusy, 22.63, 120.31)
	vehicleC = vehicle("C", "KCC-3333", "Lin Mei", domain.VehicleStatusIdle, 22.64, 120.32)
)

func applySnapshot(t *testing.T, tracker *service.FleetTracker, seq uint64, vehicles ...domain.Vehicle) *service.ReconcileResult {
	t.Helper()
	result, err := tracker.Apply(context.Background(), domain.Snapshot{Seq: seq, Vehicles: vehicles})
	if err != nil {
		t.Fatalf("unexpected error applying snapshot %d: %v", seq, err)
	}
	return result
}

func recordIDs(records []service.MarkerRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.VehicleID
	}
	return ids
}

func TestFleetTracker_ReconcilesRemoveUpdateCreate(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA, vehicleB)
	renderer.Reset()

	movedB := vehicleB
	movedB.Location = domain.Location{Lat: 22.70, Lng: 120.40}
	result := applySnapshot(t, tracker, 2, movedB, vehicleC)

	if !reflect.DeepEqual(result.Removed, []string{"A"}) {
		t.Errorf("expected removed [A], got %v", result.Removed)
	}
	if !reflect.DeepEqual(result.Updated, []string{"B"}) {
		t.Errorf("expected updated [B], got %v", result.Updated)
	}
	if !reflect.DeepEqual(result.Created, []string{"C"}) {
		t.Errorf("expected created [C], got %v", result.Created)
	}

	if !reflect.DeepEqual(renderer.Removed, []string{"A"}) ||
		!reflect.DeepEqual(renderer.Updated, []string{"B"}) ||
		!reflect.DeepEqual(renderer.Created, []string{"C"}) {
		t.Errorf("renderer calls: removed=%v updated=%v created=%v", renderer.Removed, renderer.Updated, renderer.Created)
	}
	if renderer.LiveMarkers() != 2 {
		t.Errorf("expected 2 live markers, got %d", renderer.LiveMarkers())
	}

	records := tracker.Records()
	if !reflect.DeepEqual(recordIDs(records), []string{"B", "C"}) {
		t.Fatalf("expected records [B C], got %v", recordIDs(records))
	}
	if records[0].Position != movedB.Location {
		t.Errorf("record B not moved: %+v", records[0].Position)
	}
}

func TestFleetTracker_RegistryMatchesSnapshot(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(NewMockRenderer(), 16, 15)
	snapshots := [][]domain.Vehicle{
		{vehicleA},
		{vehicleA, vehicleB, vehicleC},
		{vehicleC},
		{},
		{vehicleB, vehicleA},
	}

	for i, vehicles := range snapshots {
		applySnapshot(t, tracker, uint64(i+1), vehicles...)

		want := make([]string, len(vehicles))
		for j, v := range vehicles {
			want[j] = v.ID
		}
		sort.Strings(want)
		if got := recordIDs(tracker.Records()); !reflect.DeepEqual(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Errorf("snapshot %d: expected records %v, got %v", i+1, want, got)
		}
	}
}

func TestFleetTracker_MarkerColorFollowsStatus(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(NewMockRenderer(), 16, 15)
	unknown := vehicle("D", "KDD-4444", "Ho", "ON_BREAK", 22.6, 120.3)
	applySnapshot(t, tracker, 1, vehicleA, vehicleB, unknown)

	colors := map[string]service.MarkerColor{}
	for _, r := range tracker.Records() {
		colors[r.VehicleID] = r.Color
	}
	if colors["A"] != service.MarkerColorIdle {
		t.Errorf("idle vehicle should be %s, got %s", service.MarkerColorIdle, colors["A"])
	}
	if colors["B"] != service.MarkerColorBusy || colors["D"] != service.MarkerColorBusy {
		t.Errorf("non-idle vehicles should be %s, got B=%s D=%s", service.MarkerColorBusy, colors["B"], colors["D"])
	}
}

func TestFleetTracker_DuplicateIDsLastValueWins(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)

	busyA := vehicleA
	busyA.Status = domain.VehicleStatusBusy
	result := applySnapshot(t, tracker, 1, vehicleA, vehicleB, busyA)

	if len(result.Created) != 2 || renderer.LiveMarkers() != 2 {
		t.Fatalf("expected one marker per vehicle, got created=%v live=%d", result.Created, renderer.LiveMarkers())
	}
	got, ok := tracker.Vehicle("A")
	if !ok || got.Status != domain.VehicleStatusBusy {
		t.Errorf("expected the later A to win, got %+v", got)
	}
	if all := tracker.Search(""); all[0].ID != "A" || all[1].ID != "B" {
		t.Errorf("expected A to keep its first position, got %v", all)
	}
}

func TestFleetTracker_StaleSnapshotRejected(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(NewMockRenderer(), 16, 15)
	applySnapshot(t, tracker, 5, vehicleA)

	for _, seq := range []uint64{5, 4} {
		_, err := tracker.Apply(context.Background(), domain.Snapshot{Seq: seq, Vehicles: []domain.Vehicle{vehicleB}})
		if !errors.Is(err, service.ErrStaleSnapshot) {
			t.Errorf("seq %d: expected ErrStaleSnapshot, got %v", seq, err)
		}
	}
	if got := recordIDs(tracker.Records()); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("stale snapshot changed the registry: %v", got)
	}

	// Unsequenced snapshots are always applied.
	applySnapshot(t, tracker, 0, vehicleB)
	if got := recordIDs(tracker.Records()); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("expected [B], got %v", got)
	}
}

func TestFleetTracker_RendererUnavailableKeepsData(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	renderer.SetReady(ErrMockUnavailable)
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA, vehicleB)

	if err := tracker.RenderingStatus(); !errors.Is(err, service.ErrRenderingUnavailable) {
		t.Fatalf("expected ErrRenderingUnavailable, got %v", err)
	}
	if renderer.LiveMarkers() != 0 {
		t.Errorf("no marker should be drawn, got %d", renderer.LiveMarkers())
	}
	if len(tracker.Search("")) != 2 {
		t.Error("fleet list must work without the map")
	}
	if _, ok := tracker.Select(context.Background(), "A"); !ok {
		t.Error("selection must work without the map")
	}

	renderer.SetReady(nil)
	created, err := tracker.Resync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 || renderer.LiveMarkers() != 2 {
		t.Errorf("expected 2 markers after resync, got created=%d live=%d", created, renderer.LiveMarkers())
	}
	if err := tracker.RenderingStatus(); err != nil {
		t.Errorf("expected rendering available, got %v", err)
	}
}

func TestFleetTracker_NilRenderer(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(nil, 16, 15)
	applySnapshot(t, tracker, 1, vehicleA)

	if err := tracker.RenderingStatus(); !errors.Is(err, service.ErrRenderingUnavailable) {
		t.Errorf("expected ErrRenderingUnavailable, got %v", err)
	}
	if _, err := tracker.Resync(context.Background()); !errors.Is(err, service.ErrRenderingUnavailable) {
		t.Errorf("expected ErrRenderingUnavailable, got %v", err)
	}
}

func TestFleetTracker_FailedMarkerIsRetriedOnNextSnapshot(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	renderer.CreateError = ErrMockUnavailable
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA)
	if records := tracker.Records(); records[0].Handle != "" {
		t.Fatalf("expected no handle, got %s", records[0].Handle)
	}

	renderer.CreateError = nil
	applySnapshot(t, tracker, 2, vehicleA)
	if records := tracker.Records(); records[0].Handle == "" {
		t.Error("expected marker to be created on the next snapshot")
	}
}

func TestFleetTracker_SelectFromListCentersAtFocusZoom(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)
	applySnapshot(t, tracker, 1, vehicleA, vehicleB)

	selected, ok := tracker.Select(context.Background(), "B")
	if !ok || selected.ID != "B" {
		t.Fatalf("expected B selected, got %+v", selected)
	}

	center, ok := renderer.LastCenter()
	if !ok {
		t.Fatal("expected the map to be centered")
	}
	if center.Position != vehicleB.Location || center.Zoom != 16 {
		t.Errorf("expected center on B at zoom 16, got %+v", center)
	}
}

func TestFleetTracker_SelectFromMarkerKeepsCloserZoom(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		current int
		want    int
	}{
		{current: 10, want: 15},
		{current: 15, want: 15},
		{current: 18, want: 18},
	}

	for _, tc := range testCases {
		renderer := NewMockRenderer()
		tracker := service.NewFleetTracker(renderer, 16, 15)
		applySnapshot(t, tracker, 1, vehicleA)

		if _, ok := tracker.SelectFromMarker(context.Background(), "A", tc.current); !ok {
			t.Fatal("expected A selected")
		}
		center, _ := renderer.LastCenter()
		if center.Zoom != tc.want {
			t.Errorf("current zoom %d: expected %d, got %d", tc.current, tc.want, center.Zoom)
		}
	}
}

func TestFleetTracker_SelectingUnknownVehicleClears(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)
	applySnapshot(t, tracker, 1, vehicleA)

	tracker.Select(context.Background(), "A")
	renderer.Reset()

	if _, ok := tracker.Select(context.Background(), "Z"); ok {
		t.Fatal("unknown vehicle must not be selected")
	}
	if _, ok := tracker.Selection(); ok {
		t.Error("selection should be cleared")
	}
	if _, centered := renderer.LastCenter(); centered {
		t.Error("map must not move for an unknown vehicle")
	}
}

func TestFleetTracker_SelectionFollowsSnapshots(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(NewMockRenderer(), 16, 15)
	applySnapshot(t, tracker, 1, vehicleA, vehicleB)
	tracker.Select(context.Background(), "B")

	movedB := vehicleB
	movedB.Status = domain.VehicleStatusIdle
	applySnapshot(t, tracker, 2, vehicleA, movedB)

	selected, ok := tracker.Selection()
	if !ok || selected.Status != domain.VehicleStatusIdle {
		t.Errorf("selection should reflect the latest snapshot, got %+v", selected)
	}

	applySnapshot(t, tracker, 3, vehicleA)
	if _, ok := tracker.Selection(); ok {
		t.Error("selection should clear when the vehicle leaves the fleet")
	}

	tracker.Select(context.Background(), "A")
	tracker.ClearSelection()
	if _, ok := tracker.Selection(); ok {
		t.Error("ClearSelection should drop the selection")
	}
}

func TestFleetTracker_Search(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(nil, 16, 15)
	applySnapshot(t, tracker, 1, vehicleA, vehicleB, vehicleC)

	testCases := []struct {
		query string
		want  []string
	}{
		{"", []string{"A", "B", "C"}},
		{"   ", []string{"A", "B", "C"}},
		{"lin", []string{"A", "C"}},
		{"LIN MEI", []string{"C"}},
		{"kbb", []string{"B"}},
		{"-3333", []string{"C"}},
		{"nobody", []string{}},
	}

	for _, tc := range testCases {
		got := tracker.Search(tc.query)
		ids := make([]string, len(got))
		for i, v := range got {
			ids[i] = v.ID
		}
		if !reflect.DeepEqual(ids, tc.want) {
			t.Errorf("query %q: expected %v, got %v", tc.query, tc.want, ids)
		}
	}
}

func TestFleetTracker_SearchEmptyFleet(t *testing.T) {
	t.Parallel()

	tracker := service.NewFleetTracker(nil, 16, 15)
	if got := tracker.Search(""); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %v", got)
	}
}

func TestFleetTracker_VanishedWhileRendererDownIsReleasedLater(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA, vehicleB)

	renderer.SetReady(ErrMockUnavailable)
	applySnapshot(t, tracker, 2, vehicleB)

	if tracker.PendingRemovals() != 1 {
		t.Fatalf("expected A's marker to be owed, got %d", tracker.PendingRemovals())
	}
	if renderer.LiveMarkers() != 2 {
		t.Fatalf("renderer is down, nothing can be removed yet, got %d", renderer.LiveMarkers())
	}

	renderer.SetReady(nil)
	applySnapshot(t, tracker, 3, vehicleB)

	if renderer.LiveMarkers() != len(tracker.Records()) {
		t.Errorf("expected live markers to match the registry, got live=%d registry=%d",
			renderer.LiveMarkers(), len(tracker.Records()))
	}
	if !reflect.DeepEqual(renderer.Removed, []string{"A"}) {
		t.Errorf("expected A's marker removed, got %v", renderer.Removed)
	}
	if tracker.PendingRemovals() != 0 {
		t.Errorf("expected nothing owed, got %d", tracker.PendingRemovals())
	}
}

func TestFleetTracker_FailedRemovalIsRetriedOnResync(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA, vehicleB)

	renderer.RemoveError = ErrMockTimeout
	applySnapshot(t, tracker, 2, vehicleB)
	if tracker.PendingRemovals() != 1 || renderer.LiveMarkers() != 2 {
		t.Fatalf("expected one owed removal, got pending=%d live=%d", tracker.PendingRemovals(), renderer.LiveMarkers())
	}

	renderer.RemoveError = nil
	if _, err := tracker.Resync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracker.PendingRemovals() != 0 || renderer.LiveMarkers() != 1 {
		t.Errorf("expected the orphan released, got pending=%d live=%d", tracker.PendingRemovals(), renderer.LiveMarkers())
	}
}

func TestFleetTracker_MarkerAlreadyGoneIsNotRetried(t *testing.T) {
	t.Parallel()

	renderer := NewMockRenderer()
	tracker := service.NewFleetTracker(renderer, 16, 15)

	applySnapshot(t, tracker, 1, vehicleA)
	renderer.RemoveError = ErrMockUnknownMarker
	applySnapshot(t, tracker, 2)

	if tracker.PendingRemovals() != 0 {
		t.Errorf("a handle the renderer no longer holds is not owed, got %d", tracker.PendingRemovals())
	}
}
