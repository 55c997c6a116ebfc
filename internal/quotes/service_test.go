package quotes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/domain"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type recordedAudit struct {
	entityType domain.EntityType
	entityID   string
	changeType domain.ChangeType
}

type fakeAuditor struct {
	records []recordedAudit
}

func (f *fakeAuditor) Enqueue(entityType domain.EntityType, entityID string, changeType domain.ChangeType, auditCtx audit.Context, extras *audit.Extras) {
	f.records = append(f.records, recordedAudit{entityType: entityType, entityID: entityID, changeType: changeType})
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeAuditor) {
	t.Helper()

	dsn := fmt.Sprintf("file:fabops_quotes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Customer{},
		&domain.Material{},
		&domain.Quote{},
		&domain.QuoteItem{},
		&domain.Order{},
		&domain.Document{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	customer := domain.Customer{ID: "cust-1", Name: "Acme Fabrication"}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}

	auditor := &fakeAuditor{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC) },
		IDProvider: &sequentialIDGenerator{},
		Auditor:    auditor,
	})
	if err != nil {
		t.Fatalf("failed to construct quote service: %v", err)
	}
	return service, db, auditor
}

func createDraft(t *testing.T, service *Service) domain.Quote {
	t.Helper()
	quote, err := service.CreateQuote(context.Background(), CreateQuoteInput{
		CustomerID: "cust-1",
		CreatedBy:  "user-1",
		TaxRate:    0.1,
		Items: []ItemInput{
			{MaterialID: "steel-3mm", Description: "3mm sheet", Quantity: 4, UnitPrice: 25},
			{MaterialID: "alu-2mm", Description: "2mm sheet", Quantity: 2, UnitPrice: 15},
		},
	}, audit.Context{UserID: "user-1"})
	if err != nil {
		t.Fatalf("failed to create quote: %v", err)
	}
	return quote
}

func TestCreateQuoteStartsNewChain(t *testing.T) {
	service, db, auditor := newTestService(t)

	quote := createDraft(t, service)
	if quote.VersionNumber != 1 {
		t.Fatalf("expected version number 1, got %d", quote.VersionNumber)
	}
	if !quote.IsLatestVersion {
		t.Fatalf("expected new chain root to be latest")
	}
	if quote.ParentQuoteID != nil {
		t.Fatalf("expected no parent, got %v", *quote.ParentQuoteID)
	}
	if quote.Status != domain.QuoteStatusDraft {
		t.Fatalf("expected draft status, got %s", quote.Status)
	}
	if quote.QuoteReference == "" || quote.QuoteReference[:3] != "QR-" {
		t.Fatalf("unexpected reference %q", quote.QuoteReference)
	}
	if quote.Subtotal != 130 || quote.Tax != 13 || quote.Total != 143 {
		t.Fatalf("unexpected totals %v/%v/%v", quote.Subtotal, quote.Tax, quote.Total)
	}

	var itemCount int64
	if err := db.Model(&domain.QuoteItem{}).Where("quote_id = ?", quote.ID).Count(&itemCount).Error; err != nil {
		t.Fatalf("failed to count items: %v", err)
	}
	if itemCount != 2 {
		t.Fatalf("expected 2 persisted items, got %d", itemCount)
	}

	if len(auditor.records) != 1 || auditor.records[0].changeType != domain.ChangeCreate {
		t.Fatalf("expected one CREATE audit, got %+v", auditor.records)
	}
}

func TestCreateQuoteRequiresCustomer(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateQuote(context.Background(), CreateQuoteInput{}, audit.Context{})
	if err == nil {
		t.Fatalf("expected error for missing customer")
	}
}

func TestUpdateQuoteEditsDraftInPlace(t *testing.T) {
	service, db, auditor := newTestService(t)
	quote := createDraft(t, service)

	notes := "revised dimensions"
	items := []ItemInput{{MaterialID: "steel-3mm", Description: "3mm sheet", Quantity: 10, UnitPrice: 25}}
	updated, err := service.UpdateQuote(context.Background(), quote.ID, UpdateQuoteInput{
		Notes:   &notes,
		Items:   &items,
		TaxRate: 0.1,
	}, audit.Context{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != quote.ID {
		t.Fatalf("in-place update must not create a new row")
	}
	if updated.VersionNumber != 1 {
		t.Fatalf("expected version number unchanged, got %d", updated.VersionNumber)
	}
	if updated.Subtotal != 250 {
		t.Fatalf("expected recalculated subtotal 250, got %v", updated.Subtotal)
	}

	var chainCount int64
	if err := db.Model(&domain.Quote{}).Where("quote_reference = ?", quote.QuoteReference).Count(&chainCount).Error; err != nil {
		t.Fatalf("failed to count chain: %v", err)
	}
	if chainCount != 1 {
		t.Fatalf("expected single chain row, got %d", chainCount)
	}

	last := auditor.records[len(auditor.records)-1]
	if last.changeType != domain.ChangeUpdate {
		t.Fatalf("expected UPDATE audit, got %s", last.changeType)
	}
}

func TestUpdateQuoteRejectsNonDraft(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	sent, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{Reason: "sent to customer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.UpdateQuote(context.Background(), sent.ID, UpdateQuoteInput{}, audit.Context{})
	if !errors.Is(err, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", err)
	}
}

func TestChangeStatusAppendsChainVersion(t *testing.T) {
	service, db, auditor := newTestService(t)
	quote := createDraft(t, service)

	revision, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{UserID: "user-1", Reason: "sent to customer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revision.ID == quote.ID {
		t.Fatalf("expected a new version row")
	}
	if revision.VersionNumber != 2 {
		t.Fatalf("expected version number 2, got %d", revision.VersionNumber)
	}
	if revision.ParentQuoteID == nil || *revision.ParentQuoteID != quote.ID {
		t.Fatalf("expected parent link to predecessor")
	}
	if revision.ChangeReason != "sent to customer" {
		t.Fatalf("unexpected change reason %q", revision.ChangeReason)
	}
	if !revision.IsLatestVersion {
		t.Fatalf("expected revision to be latest")
	}
	if len(revision.Items) != 2 {
		t.Fatalf("expected items copied to revision, got %d", len(revision.Items))
	}

	var predecessor domain.Quote
	if err := db.Where("id = ?", quote.ID).Take(&predecessor).Error; err != nil {
		t.Fatalf("failed to reload predecessor: %v", err)
	}
	if predecessor.IsLatestVersion {
		t.Fatalf("expected predecessor latest flag to flip")
	}

	last := auditor.records[len(auditor.records)-1]
	if last.changeType != domain.ChangeStatusChange || last.entityID != revision.ID {
		t.Fatalf("expected STATUS_CHANGE audit on revision, got %+v", last)
	}
}

func TestChangeStatusRequiresReason(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	_, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{})
	if !errors.Is(err, ErrChangeReasonRequired) {
		t.Fatalf("expected ErrChangeReasonRequired, got %v", err)
	}
}

func TestChangeStatusRejectsSupersededVersion(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	if _, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{Reason: "sent"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusApproved, audit.Context{Reason: "approved"})
	if !errors.Is(err, ErrNotLatestVersion) {
		t.Fatalf("expected ErrNotLatestVersion, got %v", err)
	}
}

func TestChangeStatusRejectsUnchangedStatus(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	_, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusDraft, audit.Context{Reason: "no-op"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestChangeStatusMapsApprovalChangeTypes(t *testing.T) {
	service, _, auditor := newTestService(t)
	quote := createDraft(t, service)

	sent, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{Reason: "sent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.ChangeStatus(context.Background(), sent.ID, domain.QuoteStatusApproved, audit.Context{Reason: "customer approved"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := auditor.records[len(auditor.records)-1]
	if last.changeType != domain.ChangeApproved {
		t.Fatalf("expected APPROVED audit, got %s", last.changeType)
	}
}

func TestCloneQuoteStartsFreshChain(t *testing.T) {
	service, _, auditor := newTestService(t)
	quote := createDraft(t, service)

	clone, err := service.CloneQuote(context.Background(), quote.ID, audit.Context{UserID: "user-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clone.QuoteReference == quote.QuoteReference {
		t.Fatalf("expected a new reference for the clone")
	}
	if clone.VersionNumber != 1 || clone.ParentQuoteID != nil {
		t.Fatalf("expected fresh chain root, got version %d parent %v", clone.VersionNumber, clone.ParentQuoteID)
	}
	if clone.Status != domain.QuoteStatusDraft {
		t.Fatalf("expected draft clone, got %s", clone.Status)
	}
	if len(clone.Items) != 2 {
		t.Fatalf("expected items copied, got %d", len(clone.Items))
	}

	last := auditor.records[len(auditor.records)-1]
	if last.changeType != domain.ChangeClone || last.entityID != clone.ID {
		t.Fatalf("expected CLONE audit on clone, got %+v", last)
	}
}

func TestConvertToOrderRequiresApproval(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	_, _, err := service.ConvertToOrder(context.Background(), quote.ID, audit.Context{})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for draft conversion, got %v", err)
	}
}

func TestConvertToOrderCreatesOrderAndConvertsChain(t *testing.T) {
	service, db, auditor := newTestService(t)
	quote := createDraft(t, service)

	sent, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{Reason: "sent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approved, err := service.ChangeStatus(context.Background(), sent.ID, domain.QuoteStatusApproved, audit.Context{Reason: "approved"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, revision, err := service.ConvertToOrder(context.Background(), approved.ID, audit.Context{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.OrderReference[:3] != "OR-" {
		t.Fatalf("unexpected order reference %q", order.OrderReference)
	}
	if order.QuoteID == nil || *order.QuoteID != approved.ID {
		t.Fatalf("expected order linked to quote")
	}
	if order.Total != approved.Total {
		t.Fatalf("expected total carried over, got %v", order.Total)
	}
	if revision.Status != domain.QuoteStatusConverted {
		t.Fatalf("expected CONVERTED revision, got %s", revision.Status)
	}
	if revision.VersionNumber != approved.VersionNumber+1 {
		t.Fatalf("expected next version number, got %d", revision.VersionNumber)
	}

	var orderCount int64
	if err := db.Model(&domain.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("expected 1 order, got %d", orderCount)
	}

	// Conversion enqueues a CONVERT for the quote and a CREATE for the order.
	convertSeen, createSeen := false, false
	for _, record := range auditor.records {
		if record.changeType == domain.ChangeConvert && record.entityType == domain.EntityQuote {
			convertSeen = true
		}
		if record.changeType == domain.ChangeCreate && record.entityType == domain.EntityOrder {
			createSeen = true
		}
	}
	if !convertSeen || !createSeen {
		t.Fatalf("expected CONVERT and order CREATE audits, got %+v", auditor.records)
	}

	_, _, err = service.ConvertToOrder(context.Background(), revision.ID, audit.Context{})
	if !errors.Is(err, ErrAlreadyConverted) {
		t.Fatalf("expected ErrAlreadyConverted, got %v", err)
	}
}

func TestQuoteChainReturnsVersionsAscending(t *testing.T) {
	service, _, _ := newTestService(t)
	quote := createDraft(t, service)

	sent, err := service.ChangeStatus(context.Background(), quote.ID, domain.QuoteStatusSent, audit.Context{Reason: "sent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.ChangeStatus(context.Background(), sent.ID, domain.QuoteStatusApproved, audit.Context{Reason: "approved"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chain, err := service.QuoteChain(context.Background(), quote.QuoteReference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 chain versions, got %d", len(chain))
	}
	for index, version := range chain {
		if version.VersionNumber != index+1 {
			t.Fatalf("expected ascending version numbers, got %d at %d", version.VersionNumber, index)
		}
	}
	if !chain[2].IsLatestVersion || chain[0].IsLatestVersion || chain[1].IsLatestVersion {
		t.Fatalf("expected only the last version to be latest")
	}
}

func TestGetQuoteMissingReturnsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.GetQuote(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
