package orders

import (
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taproom/internal/apperr"
	"taproom/internal/broadcast"
	"taproom/internal/catalog"
	"taproom/internal/database"
	"taproom/internal/models"
	"taproom/internal/pricing"
	"taproom/internal/routing"
	"taproom/internal/stock"
	"taproom/internal/workspace"
)

type fixture struct {
	db      *gorm.DB
	store   *catalog.Store
	tracker *stock.Tracker
	drafts  *workspace.Manager
	svc     *Service

	ale    models.Item
	burger models.Item
	combo  models.Package
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// a second pooled connection to :memory: would see a different database
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	beer := models.Category{Name: "beer", Destination: models.DestinationBar, StockPolicy: models.StockPolicyStrict}
	food := models.Category{Name: "food", Destination: models.DestinationKitchen, StockPolicy: models.StockPolicyStrict}
	require.NoError(t, db.Create(&beer).Error)
	require.NoError(t, db.Create(&food).Error)

	f := &fixture{db: db}
	f.ale = models.Item{Name: "Pale Ale", CategoryID: beer.ID, Price: 50, Stock: 10, Active: true}
	f.burger = models.Item{Name: "Smash Burger", CategoryID: food.ID, Price: 30, Stock: 10, Active: true}
	require.NoError(t, db.Create(&f.ale).Error)
	require.NoError(t, db.Create(&f.burger).Error)

	f.combo = models.Package{Name: "Beer & Burger Combo", Price: 70, Active: true}
	require.NoError(t, db.Create(&f.combo).Error)
	require.NoError(t, db.Create(&models.PackageComponent{PackageID: f.combo.ID, ItemID: f.ale.ID, Quantity: 1, Position: 0}).Error)
	require.NoError(t, db.Create(&models.PackageComponent{PackageID: f.combo.ID, ItemID: f.burger.ID, Quantity: 1, Position: 1}).Error)

	for n := 1; n <= 4; n++ {
		require.NoError(t, db.Create(&models.Table{Number: n}).Error)
	}

	f.store = catalog.NewStore(db)
	snapshot, err := f.store.Snapshot()
	require.NoError(t, err)
	f.tracker = stock.NewTracker(f.store, 2)
	f.tracker.Initialize(snapshot)
	f.drafts = workspace.NewManager(f.store, f.tracker, pricing.Resolver{})
	f.svc = NewService(db, f.store, f.tracker, routing.NewEngine(f.store),
		broadcast.NewHub(), f.drafts, 0)
	return f
}

// draftWith builds a workspace holding the given item lines
func (f *fixture) draftWith(t *testing.T, operatorID string, lines ...workspace.LineRef) *workspace.Workspace {
	t.Helper()
	ws := f.drafts.Ensure(operatorID)
	for _, ref := range lines {
		_, err := f.drafts.AddLine(operatorID, ws.ID, ref)
		require.NoError(t, err)
	}
	return ws
}

func (f *fixture) itemStock(t *testing.T, id uint) int {
	t.Helper()
	item, err := f.store.GetItem(id)
	require.NoError(t, err)
	return item.Stock
}

func TestFinalizeComputesTotals(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1",
		workspace.LineRef{ItemID: f.ale.ID, Quantity: 2},    // 2 x 50
		workspace.LineRef{ItemID: f.burger.ID, Quantity: 1}, // 1 x 30
	)

	order, err := f.svc.Finalize(FinalizeRequest{
		OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 130.0, order.Total)
	assert.Equal(t, models.OrderStatusDraft, order.Status)
	assert.Len(t, order.Lines, 2)

	// The draft is destroyed by finalization.
	_, err = f.drafts.Get("op-1", ws.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFinalizeOpensSessionAndOccupiesTable(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 1})

	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 2})
	require.NoError(t, err)

	session, err := f.svc.GetSession(order.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusOpen, session.Status)
	assert.Regexp(t, `^TAB-\d{8}-\d{3}$`, session.Number)

	var table models.Table
	require.NoError(t, f.db.Where("number = ?", 2).First(&table).Error)
	assert.True(t, table.Occupied)
}

func TestSecondOrderAppendsToOpenSession(t *testing.T) {
	f := newFixture(t)

	ws1 := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 1})
	first, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws1.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	ws2 := f.draftWith(t, "op-2", workspace.LineRef{ItemID: f.burger.ID, Quantity: 2})
	second, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-2", WorkspaceID: ws2.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)

	session, err := f.svc.GetSession(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.Total+second.Total, session.Total)
}

func TestConfirmCommitsStockAndRoutesTickets(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 3})

	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)

	// Reservation became a durable deduction.
	assert.Equal(t, 7, f.itemStock(t, f.ale.ID))
	assert.Equal(t, 0, f.tracker.Reserved(f.ale.ID))
	assert.Equal(t, 7, f.tracker.Available(f.ale.ID))

	var tickets []models.Ticket
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&tickets).Error)
	require.Len(t, tickets, 1)
	assert.Equal(t, models.DestinationBar, tickets[0].Destination)
	assert.Equal(t, "Pale Ale", tickets[0].Name)
	assert.Equal(t, 3, tickets[0].Quantity)
}

func TestConfirmPackageRoutesPerComponent(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{PackageID: f.combo.ID, Quantity: 2})

	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	var tickets []models.Ticket
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Order("id").Find(&tickets).Error)
	require.Len(t, tickets, 2)
	assert.Equal(t, "Pale Ale", tickets[0].Name)
	assert.Equal(t, models.DestinationBar, tickets[0].Destination)
	assert.Equal(t, "Smash Burger", tickets[1].Name)
	assert.Equal(t, models.DestinationKitchen, tickets[1].Destination)
	for _, tk := range tickets {
		assert.Equal(t, "Beer & Burger Combo", tk.PackageName)
		assert.Equal(t, 2, tk.Quantity)
	}

	// Component stock was committed.
	assert.Equal(t, 8, f.itemStock(t, f.ale.ID))
	assert.Equal(t, 8, f.itemStock(t, f.burger.ID))
}

func TestVoidConfirmedRestoresStockAndCancelsTickets(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 4})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)
	require.Equal(t, 6, f.itemStock(t, f.ale.ID))

	voided, err := f.svc.Void(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusVoided, voided.Status)
	assert.Equal(t, 10, f.itemStock(t, f.ale.ID))

	var tickets []models.Ticket
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&tickets).Error)
	for _, tk := range tickets {
		assert.Equal(t, models.TicketStatusVoided, tk.Status)
	}

	// Voided orders no longer count toward the session total.
	session, err := f.svc.GetSession(order.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, session.Total)
}

func TestVoidConfirmedRefreshesAvailability(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 4})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)
	require.Equal(t, 6, f.tracker.Available(f.ale.ID))

	_, err = f.svc.Void(order.ID)
	require.NoError(t, err)

	// The returned units are visible to the overlay again, not just the
	// durable store.
	assert.Equal(t, 10, f.itemStock(t, f.ale.ID))
	assert.Equal(t, 10, f.tracker.Available(f.ale.ID))

	// A new draft can reserve more than the post-deduction level.
	ws2 := f.drafts.Ensure("op-2")
	_, err = f.drafts.AddLine("op-2", ws2.ID, workspace.LineRef{ItemID: f.ale.ID, Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, f.tracker.Available(f.ale.ID))
}

func TestVoidDraftReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 4})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1})
	require.NoError(t, err)
	require.Equal(t, 4, f.tracker.Reserved(f.ale.ID))

	_, err = f.svc.Void(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.tracker.Reserved(f.ale.ID))
	assert.Equal(t, 10, f.itemStock(t, f.ale.ID)) // never durably deducted
}

func TestTerminalOrdersRejectTransitions(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 1})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1})
	require.NoError(t, err)

	_, err = f.svc.Void(order.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(order.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = f.svc.Void(order.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestAdvanceTicketCascadesToOrder(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{PackageID: f.combo.ID, Quantity: 1})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	var tickets []models.Ticket
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Order("id").Find(&tickets).Error)
	require.Len(t, tickets, 2)

	// First ticket starting moves the order to preparing.
	tk, err := f.svc.AdvanceTicket(tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPreparing, tk.Status)
	assert.NotNil(t, tk.StartedAt)

	order, err = f.svc.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, order.Status)

	// The order is only ready once every ticket is.
	_, err = f.svc.AdvanceTicket(tickets[0].ID)
	require.NoError(t, err)
	order, _ = f.svc.Get(order.ID)
	assert.Equal(t, models.OrderStatusPreparing, order.Status)

	_, err = f.svc.AdvanceTicket(tickets[1].ID)
	require.NoError(t, err)
	_, err = f.svc.AdvanceTicket(tickets[1].ID)
	require.NoError(t, err)
	order, _ = f.svc.Get(order.ID)
	assert.Equal(t, models.OrderStatusReady, order.Status)

	_, err = f.svc.AdvanceTicket(tickets[0].ID)
	require.NoError(t, err)
	_, err = f.svc.AdvanceTicket(tickets[1].ID)
	require.NoError(t, err)
	order, _ = f.svc.Get(order.ID)
	assert.Equal(t, models.OrderStatusServed, order.Status)

	// Served is terminal for tickets too.
	_, err = f.svc.AdvanceTicket(tickets[0].ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestTransferSessionMovesEverything(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 1})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	session, err := f.svc.TransferSession(order.SessionID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, session.TableNumber)

	var oldTable, newTable models.Table
	require.NoError(t, f.db.Where("number = ?", 1).First(&oldTable).Error)
	require.NoError(t, f.db.Where("number = ?", 3).First(&newTable).Error)
	assert.False(t, oldTable.Occupied)
	assert.True(t, newTable.Occupied)

	order, err = f.svc.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, order.TableNumber)
}

func TestTransferSessionRejectsOccupiedTarget(t *testing.T) {
	f := newFixture(t)

	ws1 := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 1})
	first, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws1.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	ws2 := f.draftWith(t, "op-2", workspace.LineRef{ItemID: f.burger.ID, Quantity: 1})
	_, err = f.svc.Finalize(FinalizeRequest{OperatorID: "op-2", WorkspaceID: ws2.ID, TableNumber: 2, Confirm: true})
	require.NoError(t, err)

	_, err = f.svc.TransferSession(first.SessionID, 2)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Nothing moved.
	session, err := f.svc.GetSession(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TableNumber)
	var table models.Table
	require.NoError(t, f.db.Where("number = ?", 1).First(&table).Error)
	assert.True(t, table.Occupied)
}

func TestCloseSessionFreesTableAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ws := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 2})
	order, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	session, err := f.svc.CloseSession(order.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusClosed, session.Status)
	assert.Equal(t, 100.0, session.Total)

	var table models.Table
	require.NoError(t, f.db.Where("number = ?", 1).First(&table).Error)
	assert.False(t, table.Occupied)

	_, err = f.svc.CloseSession(order.SessionID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	_, err = f.svc.TransferSession(order.SessionID, 3)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestSessionTotalsTrackEveryChange(t *testing.T) {
	f := newFixture(t)

	ws1 := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.ale.ID, Quantity: 2})
	first, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws1.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	ws2 := f.draftWith(t, "op-1", workspace.LineRef{ItemID: f.burger.ID, Quantity: 1})
	second, err := f.svc.Finalize(FinalizeRequest{OperatorID: "op-1", WorkspaceID: ws2.ID, TableNumber: 1, Confirm: true})
	require.NoError(t, err)

	session, err := f.svc.GetSession(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 130.0, session.Total)

	_, err = f.svc.Void(second.ID)
	require.NoError(t, err)

	session, err = f.svc.GetSession(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, session.Total)
}
