package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
)

func ptr[T any](v T) *T { return &v }

func seedTransfer(t *testing.T, ctx context.Context, q Querier, status model.TransferStatus, scheduled *time.Time) *model.Transfer {
	t.Helper()

	user, err := CreateUser(ctx, q, "requester", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	dept, _ := CreateDepartment(ctx, q, "IT")
	a1, _ := CreateAsset(ctx, q, model.Asset{Name: "Laptop", Value: decimal.NewFromInt(800)})
	a2, _ := CreateAsset(ctx, q, model.Asset{Name: "Monitor", Value: decimal.NewFromInt(200)})

	tr := &model.Transfer{
		Type:           model.TransferDepartment,
		Status:         status,
		AssetIDs:       []int64{a2.ID, a1.ID},
		ToDepartmentID: &dept.ID,
		Reason:         "moving to the IT department",
		ScheduledDate:  scheduled,
		RequestedBy:    user.ID,
	}
	if err := CreateTransfer(ctx, q, tr, time.Now()); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	return tr
}

func TestCreateAndGetTransfer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	tr := seedTransfer(t, ctx, database, model.StatusPending, nil)
	if tr.ID == 0 {
		t.Fatal("expected transfer ID to be set")
	}

	got, err := GetTransfer(ctx, database, tr.ID)
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if got.Status != model.StatusPending || got.Type != model.TransferDepartment {
		t.Errorf("unexpected transfer: %+v", got)
	}
	// Asset order is preserved.
	if len(got.AssetIDs) != 2 || got.AssetIDs[0] != tr.AssetIDs[0] || got.AssetIDs[1] != tr.AssetIDs[1] {
		t.Errorf("expected asset ids %v, got %v", tr.AssetIDs, got.AssetIDs)
	}
	if got.ScheduledDate != nil || got.CompletedAt != nil {
		t.Errorf("expected no dates, got scheduled=%v completed=%v", got.ScheduledDate, got.CompletedAt)
	}

	missing, err := GetTransfer(ctx, database, 9999)
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing transfer")
	}
}

func TestUpdateTransferGuardsStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	tr := seedTransfer(t, ctx, database, model.StatusPending, nil)

	tr.Status = model.StatusApproved
	tr.Notes = "looks fine"
	ok, err := UpdateTransfer(ctx, database, tr, model.StatusPending, time.Now())
	if err != nil {
		t.Fatalf("UpdateTransfer: %v", err)
	}
	if !ok {
		t.Fatal("expected update from PENDING to succeed")
	}

	// The stored status is no longer PENDING, so a second update must not apply.
	tr.Status = model.StatusRejected
	ok, err = UpdateTransfer(ctx, database, tr, model.StatusPending, time.Now())
	if err != nil {
		t.Fatalf("UpdateTransfer: %v", err)
	}
	if ok {
		t.Error("expected stale update to be refused")
	}

	got, _ := GetTransfer(ctx, database, tr.ID)
	if got.Status != model.StatusApproved || got.Notes != "looks fine" {
		t.Errorf("unexpected stored transfer: %+v", got)
	}
}

func TestListDueTransfers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	due := seedTransfer(t, ctx, database, model.StatusApproved, ptr(now.Add(-time.Minute)))

	// Fresh directory rows for the second and third transfers.
	user, _ := CreateUser(ctx, database, "other", "hash", model.RoleUser)
	dept, _ := CreateDepartment(ctx, database, "Finance")
	asset, _ := CreateAsset(ctx, database, model.Asset{Name: "Phone"})
	later := &model.Transfer{
		Type: model.TransferDepartment, Status: model.StatusApproved, AssetIDs: []int64{asset.ID},
		ToDepartmentID: &dept.ID, Reason: "scheduled for later", RequestedBy: user.ID,
		ScheduledDate: ptr(now.Add(10 * time.Minute)),
	}
	if err := CreateTransfer(ctx, database, later, now); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	pending := &model.Transfer{
		Type: model.TransferDepartment, Status: model.StatusPending, AssetIDs: []int64{asset.ID},
		ToDepartmentID: &dept.ID, Reason: "still waiting on approval", RequestedBy: user.ID,
		ScheduledDate: ptr(now.Add(-time.Hour)),
	}
	if err := CreateTransfer(ctx, database, pending, now); err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	transfers, err := ListDueTransfers(ctx, database, now)
	if err != nil {
		t.Fatalf("ListDueTransfers: %v", err)
	}
	if len(transfers) != 1 || transfers[0].ID != due.ID {
		t.Fatalf("expected only transfer %d to be due, got %+v", due.ID, transfers)
	}

	transfers, _ = ListDueTransfers(ctx, database, now.Add(11*time.Minute))
	if len(transfers) != 2 {
		t.Errorf("expected 2 due transfers after the schedule passes, got %d", len(transfers))
	}

	if _, err := EnqueueJob(ctx, database, due.ID, 3, now, now); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	jobs, _ := ListJobs(ctx, database, due.ID)
	if err := FailJob(ctx, database, jobs[0].ID, "boom", now); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	transfers, _ = ListDueTransfers(ctx, database, now.Add(11*time.Minute))
	if len(transfers) != 1 || transfers[0].ID != later.ID {
		t.Errorf("expected a transfer with a failed job to stay out, got %+v", transfers)
	}
}

func TestListTransfersFiltered(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	tr := seedTransfer(t, ctx, database, model.StatusPending, nil)

	all, total, err := ListTransfers(ctx, database, model.TransferFilter{})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if total != 1 || len(all) != 1 {
		t.Errorf("expected 1 transfer, got %d (total %d)", len(all), total)
	}

	byStatus, _, _ := ListTransfers(ctx, database, model.TransferFilter{Status: model.StatusApproved})
	if len(byStatus) != 0 {
		t.Errorf("expected no approved transfers, got %d", len(byStatus))
	}

	byRequester, _, _ := ListTransfers(ctx, database, model.TransferFilter{RequestedBy: tr.RequestedBy, Limit: 10, Page: 1})
	if len(byRequester) != 1 || len(byRequester[0].AssetIDs) != 2 {
		t.Errorf("expected 1 transfer with 2 assets for requester, got %+v", byRequester)
	}

	page2, total, _ := ListTransfers(ctx, database, model.TransferFilter{Limit: 1, Page: 2})
	if len(page2) != 0 || total != 1 {
		t.Errorf("expected empty second page with total 1, got %d (total %d)", len(page2), total)
	}
}

func TestCaptureTransferAsset(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	tr := seedTransfer(t, ctx, database, model.StatusApproved, nil)
	loc, _ := CreateLocation(ctx, database, "Warehouse")

	err := CaptureTransferAsset(ctx, database, model.TransferAsset{
		TransferID: tr.ID, AssetID: tr.AssetIDs[0], PrevLocationID: &loc.ID,
	})
	if err != nil {
		t.Fatalf("CaptureTransferAsset: %v", err)
	}

	assets, err := GetTransferAssets(ctx, database, tr.ID)
	if err != nil {
		t.Fatalf("GetTransferAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 transfer assets, got %d", len(assets))
	}
	if !assets[0].Captured || assets[0].PrevLocationID == nil || *assets[0].PrevLocationID != loc.ID {
		t.Errorf("expected first asset captured with location %d, got %+v", loc.ID, assets[0])
	}
	if assets[1].Captured {
		t.Error("expected second asset not captured")
	}
}
