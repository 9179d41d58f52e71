// Package transfer implements the asset-transfer workflow: creation with
// approval rules and asset reservation, the approval lifecycle, transactional
// execution and undo.
package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/prenos/internal/events"
	"github.com/erazemk/prenos/internal/lock"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/rules"
	"github.com/erazemk/prenos/internal/store"
)

// Defaults for Options.
const (
	DefaultUndoWindow  = 24 * time.Hour
	DefaultMaxAttempts = 3
)

// Options tune a Service. Zero values select the defaults.
type Options struct {
	// UndoWindow is how long after completion a transfer may be undone.
	UndoWindow time.Duration
	// MaxAttempts bounds the retries of queued executions.
	MaxAttempts int
	Logger      *slog.Logger
}

// Service is the transfer engine. It is safe for concurrent use.
type Service struct {
	db     *sql.DB
	locks  *lock.AssetLocks
	guard  *lock.Guard
	bus    *events.Bus
	logger *slog.Logger

	undoWindow  time.Duration
	maxAttempts int

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewService creates a transfer engine backed by database. bus may be nil,
// in which case no events are published.
func NewService(database *sql.DB, locks *lock.AssetLocks, guard *lock.Guard, bus *events.Bus, opts Options) *Service {
	if opts.UndoWindow <= 0 {
		opts.UndoWindow = DefaultUndoWindow
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:          database,
		locks:       locks,
		guard:       guard,
		bus:         bus,
		logger:      opts.Logger,
		undoWindow:  opts.UndoWindow,
		maxAttempts: opts.MaxAttempts,
		Now:         time.Now,
	}
}

// Create validates and stores a new transfer, reserves its assets and
// decides whether it needs approval. A transfer that needs no approval and
// has no schedule is executed right away.
func (s *Service) Create(ctx context.Context, req CreateRequest, requesterID int64) (*model.Transfer, error) {
	now := s.Now()
	req.normalize()

	requester, err := store.GetActiveUser(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, newError(ErrNotFound, "user %d not found", requesterID)
	}
	if err := req.validate(now); err != nil {
		return nil, err
	}
	if err := s.checkDestinations(ctx, &req); err != nil {
		return nil, err
	}

	assets, err := store.GetAssets(ctx, s.db, req.AssetIDs)
	if err != nil {
		return nil, err
	}
	if err := checkAssets(req.AssetIDs, assets); err != nil {
		return nil, err
	}

	locked, err := s.locks.CheckLocked(ctx, req.AssetIDs)
	if err != nil {
		return nil, err
	}
	if len(locked) > 0 {
		return nil, &ConflictError{Assets: locked}
	}

	t := req.transfer(requesterID)
	subject, err := s.subject(ctx, s.db, t, assets)
	if err != nil {
		return nil, err
	}
	active, err := store.ListRules(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	t.ApprovalRequired = rules.RequiresApproval(subject, active)
	t.Status = initialStatus(t.ApprovalRequired)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := store.CreateTransfer(ctx, tx, t, now); err != nil {
			return err
		}
		// Reserve inside the transaction so a lost race leaves no row behind.
		var wait time.Duration
		if t.ScheduledDate != nil {
			wait = t.ScheduledDate.Sub(now)
		}
		err := s.locks.LockFor(ctx, t.AssetIDs, t.ID, wait)
		var held *lock.AssetsHeldError
		if errors.As(err, &held) {
			return &ConflictError{Assets: held.Holders}
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			s.unlock(ctx, t)
		}
		return nil, err
	}

	s.logger.Info("transfer created", "transfer", t.ID, "user", requesterID,
		"type", t.Type, "assets", len(t.AssetIDs), "approval_required", t.ApprovalRequired)
	s.publish(events.TransferCreated, t, requesterID)

	if t.Status == model.StatusApproved && t.ScheduledDate == nil {
		return s.executeInline(ctx, t, requesterID)
	}
	return t, nil
}

// Get returns a transfer by ID.
func (s *Service) Get(ctx context.Context, id int64) (*model.Transfer, error) {
	return s.getTransfer(ctx, s.db, id)
}

// List returns transfers matching f, newest first, and the total count.
func (s *Service) List(ctx context.Context, f model.TransferFilter) ([]model.Transfer, int, error) {
	return store.ListTransfers(ctx, s.db, f)
}

// ListPendingApprovalsFor returns the pending transfers userID may approve.
func (s *Service) ListPendingApprovalsFor(ctx context.Context, userID int64) ([]model.Transfer, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, _, err := store.ListTransfers(ctx, s.db, model.TransferFilter{Status: model.StatusPending})
	if err != nil {
		return nil, err
	}
	active, err := store.ListRules(ctx, s.db, true)
	if err != nil {
		return nil, err
	}

	result := []model.Transfer{}
	for i := range pending {
		t := &pending[i]
		if !t.ApprovalRequired || t.RequestedBy == user.ID {
			continue
		}
		ok, err := s.mayApprove(ctx, s.db, t, user, active)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, *t)
		}
	}
	return result, nil
}

// Approve moves a pending transfer to APPROVED. Unscheduled transfers are
// executed right away.
func (s *Service) Approve(ctx context.Context, id, approverID int64, notes string) (*model.Transfer, error) {
	approver, err := s.activeUser(ctx, approverID)
	if err != nil {
		return nil, err
	}

	var t *model.Transfer
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if t, err = s.getTransfer(ctx, tx, id); err != nil {
			return err
		}
		if err := s.authorizeDecision(ctx, tx, t, approver, actionApprove); err != nil {
			return err
		}
		if err := advance(t, actionApprove); err != nil {
			return err
		}
		t.ApprovedBy = &approverID
		t.Notes = appendNote(t.Notes, notes)
		return s.update(ctx, tx, t, model.StatusPending)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer approved", "transfer", id, "user", approverID)
	s.publish(events.TransferApproved, t, approverID)

	if t.ScheduledDate == nil {
		return s.executeInline(ctx, t, approverID)
	}
	return t, nil
}

// Reject moves a pending transfer to REJECTED and frees its assets.
func (s *Service) Reject(ctx context.Context, id, approverID int64, reason string) (*model.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(ErrValidation, "rejection reason is required")
	}

	approver, err := s.activeUser(ctx, approverID)
	if err != nil {
		return nil, err
	}

	var t *model.Transfer
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if t, err = s.getTransfer(ctx, tx, id); err != nil {
			return err
		}
		if err := s.authorizeDecision(ctx, tx, t, approver, actionReject); err != nil {
			return err
		}
		if err := advance(t, actionReject); err != nil {
			return err
		}
		t.RejectedBy = &approverID
		t.RejectionReason = reason
		return s.update(ctx, tx, t, model.StatusPending)
	})
	if err != nil {
		return nil, err
	}

	s.unlock(ctx, t)
	s.logger.Info("transfer rejected", "transfer", id, "user", approverID)
	s.publish(events.TransferRejected, t, approverID)
	return t, nil
}

// Cancel withdraws a transfer that has not been executed yet. Only the
// requester may cancel.
func (s *Service) Cancel(ctx context.Context, id, requesterID int64) (*model.Transfer, error) {
	var t *model.Transfer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if t, err = s.getTransfer(ctx, tx, id); err != nil {
			return err
		}
		if t.RequestedBy != requesterID {
			return newError(ErrForbidden, "only the requester can cancel the transfer")
		}
		from := t.Status
		if err := advance(t, actionCancel); err != nil {
			return err
		}
		return s.update(ctx, tx, t, from)
	})
	if err != nil {
		return nil, err
	}

	s.unlock(ctx, t)
	s.logger.Info("transfer cancelled", "transfer", id, "user", requesterID)
	s.publish(events.TransferCancelled, t, requesterID)
	return t, nil
}

// executeInline runs a freshly approved transfer. When that fails the
// transfer stays APPROVED and is handed to the job queue for retries.
func (s *Service) executeInline(ctx context.Context, t *model.Transfer, actorID int64) (*model.Transfer, error) {
	done, err := s.execute(ctx, t.ID, actorID)
	if err == nil {
		return done, nil
	}
	if IsPermanent(err) {
		return nil, err
	}

	s.logger.Error("inline execution failed, queueing retry", "transfer", t.ID, "error", err)
	now := s.Now()
	if _, qerr := store.EnqueueJob(context.WithoutCancel(ctx), s.db, t.ID, s.maxAttempts, now, now); qerr != nil {
		s.logger.Error("failed to queue transfer", "transfer", t.ID, "error", qerr)
	}
	return s.getTransfer(context.WithoutCancel(ctx), s.db, t.ID)
}

// authorizeDecision checks that approver may approve or reject t.
func (s *Service) authorizeDecision(ctx context.Context, q store.Querier, t *model.Transfer, approver *model.User, a action) error {
	if t.RequestedBy == approver.ID {
		return newError(ErrForbidden, "cannot %s your own transfer request", a)
	}
	if t.Status != model.StatusPending {
		// advance reports the precise state error.
		return nil
	}

	active, err := store.ListRules(ctx, q, true)
	if err != nil {
		return err
	}
	ok, err := s.mayApprove(ctx, q, t, approver, active)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrForbidden, "user %d is not an approver for transfer %d", approver.ID, t.ID)
	}
	return nil
}

// mayApprove reports whether user may decide on t. Admins always may. When
// rules match t, only the approvers they name may; otherwise managers may.
func (s *Service) mayApprove(ctx context.Context, q store.Querier, t *model.Transfer, user *model.User, active []model.ApprovalRule) (bool, error) {
	if user.Role == model.RoleAdmin {
		return true, nil
	}

	assets, err := store.GetAssets(ctx, q, t.AssetIDs)
	if err != nil {
		return false, err
	}
	subject, err := s.subject(ctx, q, t, assets)
	if err != nil {
		return false, err
	}

	matching := rules.Matching(subject, active)
	if len(matching) == 0 {
		return model.RoleAtLeast(user.Role, model.RoleManager), nil
	}
	return rules.CanApprove(user, matching), nil
}

// mayOperate reports whether user may execute or undo t.
func mayOperate(t *model.Transfer, user *model.User) bool {
	return t.RequestedBy == user.ID || model.RoleAtLeast(user.Role, model.RoleManager)
}

// subject builds the rule input for t from its assets and departments.
func (s *Service) subject(ctx context.Context, q store.Querier, t *model.Transfer, assets []model.Asset) (rules.Subject, error) {
	var subj rules.Subject
	subj.TotalValue = decimal.Zero

	seen := map[string]bool{}
	for _, a := range assets {
		subj.TotalValue = subj.TotalValue.Add(a.Value)
		if a.CategoryName != "" && !seen[a.CategoryName] {
			seen[a.CategoryName] = true
			subj.Categories = append(subj.Categories, a.CategoryName)
		}
	}

	for _, id := range []*int64{t.FromDepartmentID, t.ToDepartmentID} {
		if id == nil {
			continue
		}
		d, err := store.GetDepartment(ctx, q, *id)
		if err != nil {
			return subj, err
		}
		if d != nil {
			subj.Departments = append(subj.Departments, d.Name)
		}
	}
	return subj, nil
}

// checkDestinations verifies that every referenced user, department and
// location exists.
func (s *Service) checkDestinations(ctx context.Context, req *CreateRequest) error {
	for _, ref := range []struct {
		kind string
		id   *int64
	}{
		{"user", req.FromUserID}, {"user", req.ToUserID},
		{"department", req.FromDepartmentID}, {"department", req.ToDepartmentID},
		{"location", req.FromLocationID}, {"location", req.ToLocationID},
	} {
		if ref.id == nil {
			continue
		}

		var found bool
		switch ref.kind {
		case "user":
			u, err := store.GetActiveUser(ctx, s.db, *ref.id)
			if err != nil {
				return err
			}
			found = u != nil
		case "department":
			d, err := store.GetDepartment(ctx, s.db, *ref.id)
			if err != nil {
				return err
			}
			found = d != nil
		case "location":
			l, err := store.GetLocation(ctx, s.db, *ref.id)
			if err != nil {
				return err
			}
			found = l != nil
		}
		if !found {
			return newError(ErrNotFound, "%s %d not found", ref.kind, *ref.id)
		}
	}
	return nil
}

// checkAssets verifies that every requested asset was found and none is
// retired.
func checkAssets(ids []int64, assets []model.Asset) error {
	byID := make(map[int64]model.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return newError(ErrNotFound, "asset %d not found", id)
		}
		if a.Status == model.AssetStatusRetired {
			return newError(ErrValidation, "asset %d is retired and cannot be transferred", id)
		}
	}
	return nil
}

func (s *Service) activeUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := store.GetActiveUser(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, newError(ErrNotFound, "user %d not found", id)
	}
	return u, nil
}

func (s *Service) getTransfer(ctx context.Context, q store.Querier, id int64) (*model.Transfer, error) {
	t, err := store.GetTransfer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, newError(ErrNotFound, "transfer %d not found", id)
	}
	return t, nil
}

// update writes t if it is still in status from.
func (s *Service) update(ctx context.Context, q store.Querier, t *model.Transfer, from model.TransferStatus) error {
	ok, err := store.UpdateTransfer(ctx, q, t, from, s.Now())
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrInvalidState, "transfer %d changed concurrently", t.ID)
	}
	return nil
}

// withTx runs fn in a write transaction. The database opens transactions
// with BEGIN IMMEDIATE, so write transactions run one at a time.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// unlock frees the assets of t. Failures are logged; the TTL reclaims
// whatever is left.
func (s *Service) unlock(ctx context.Context, t *model.Transfer) {
	if err := s.locks.Unlock(context.WithoutCancel(ctx), t.AssetIDs, t.ID); err != nil {
		s.logger.Warn("failed to release asset locks", "transfer", t.ID, "error", err)
	}
}

func (s *Service) publish(typ events.Type, t *model.Transfer, actorID int64) {
	s.bus.Publish(events.Event{Type: typ, Transfer: *t, ActorID: actorID, At: s.Now()})
}
