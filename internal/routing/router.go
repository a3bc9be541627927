// Package routing expands confirmed order lines into station work tickets.
// Composite packages become one ticket per component; nothing routed is ever
// silently dropped.
package routing

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"taproom/internal/catalog"
	"taproom/internal/models"
)

// barKeywords drive the name heuristic used when an item's category carries
// no destination.
var barKeywords = []string{
	"beer", "ale", "lager", "stout", "cider", "wine", "cocktail",
	"whiskey", "gin", "rum", "vodka", "tequila", "soda", "cola",
	"juice", "lemonade", "coffee", "tea", "shot", "spritz",
}

// ResolveDestination implements the fallback chain: explicit category
// destination, then a keyword match against the display name, then the
// kitchen default.
func ResolveDestination(categoryDest, name string) string {
	switch categoryDest {
	case models.DestinationKitchen, models.DestinationBar, models.DestinationBoth:
		return categoryDest
	}
	lower := strings.ToLower(name)
	for _, kw := range barKeywords {
		if strings.Contains(lower, kw) {
			return models.DestinationBar
		}
	}
	return models.DestinationKitchen
}

// Engine expands order lines against the live catalog
type Engine struct {
	catalog catalog.Provider
}

// NewEngine creates a routing engine reading definitions from cat
func NewEngine(cat catalog.Provider) *Engine {
	return &Engine{catalog: cat}
}

// Expand builds the station tickets for every line of the order. A line that
// cannot be fully resolved degrades rather than aborting the rest: an
// unresolvable package is logged and skipped, a missing component becomes a
// generic kitchen ticket.
func (e *Engine) Expand(order *models.Order) []*models.Ticket {
	var tickets []*models.Ticket
	for _, line := range order.Lines {
		if line.PackageID != nil {
			tickets = append(tickets, e.expandPackage(order, &line)...)
		} else {
			tickets = append(tickets, e.expandItem(order, &line))
		}
	}
	return tickets
}

func (e *Engine) expandItem(order *models.Order, line *models.OrderLine) *models.Ticket {
	dest := models.DestinationKitchen
	name := line.Name
	if line.ItemID != nil {
		if item, err := e.catalog.GetItem(*line.ItemID); err != nil {
			log.Printf("routing: item %d missing for order %d, defaulting to kitchen: %v", *line.ItemID, order.ID, err)
		} else {
			dest = ResolveDestination(item.Category.Destination, item.Name)
			name = item.Name
		}
	}
	return e.newTicket(order, line, dest, name, line.Quantity, "", 0)
}

// expandPackage emits one ticket per component, labeled with the component's
// own name and annotated with the parent package. Tickets are never merged
// by destination, so a mixed package always yields tickets at every station
// it touches.
func (e *Engine) expandPackage(order *models.Order, line *models.OrderLine) []*models.Ticket {
	pkg, err := e.catalog.GetPackage(*line.PackageID)
	if err != nil {
		log.Printf("routing: package %d unresolvable for order %d, skipping line: %v", *line.PackageID, order.ID, err)
		return nil
	}
	tickets := make([]*models.Ticket, 0, len(pkg.Components))
	for _, comp := range pkg.Components {
		qty := line.Quantity * comp.Quantity
		item, err := e.catalog.GetItem(comp.ItemID)
		if err != nil {
			log.Printf("routing: component %d of package %q missing, defaulting to kitchen: %v", comp.ItemID, pkg.Name, err)
			name := fmt.Sprintf("%s component", pkg.Name)
			tickets = append(tickets, e.newTicket(order, line, models.DestinationKitchen, name, qty, pkg.Name, comp.Quantity))
			continue
		}
		dest := ResolveDestination(item.Category.Destination, item.Name)
		tickets = append(tickets, e.newTicket(order, line, dest, item.Name, qty, pkg.Name, comp.Quantity))
	}
	return tickets
}

func (e *Engine) newTicket(order *models.Order, line *models.OrderLine, dest, name string, qty int, pkgName string, pkgQty int) *models.Ticket {
	return &models.Ticket{
		UID:         uuid.New().String(),
		OrderID:     order.ID,
		OrderLineID: line.ID,
		Destination: dest,
		Name:        name,
		Quantity:    qty,
		PackageName: pkgName,
		PackageQty:  pkgQty,
		Status:      models.TicketStatusPending,
	}
}
