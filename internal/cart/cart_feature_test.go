package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartFeatureContext struct {
	catalog map[string]domain.CatalogItem
	store   *Store
}

func (c *cartFeatureContext) reset() {
	c.catalog = make(map[string]domain.CatalogItem)
	c.store = NewStore()
}

func (c *cartFeatureContext) aCatalogItemPricedWithStock(id, price string, stock int) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.catalog[id] = domain.CatalogItem{ID: id, Name: id, Price: p, Stock: stock}
	return nil
}

func (c *cartFeatureContext) iAddOf(qty int, id string) error {
	item, ok := c.catalog[id]
	if !ok {
		return fmt.Errorf("unknown catalog item %q", id)
	}
	c.store.AddItem(item, qty)
	return nil
}

func (c *cartFeatureContext) iSetTheQuantityOfTo(id string, n int) error {
	c.store.UpdateQuantity(id, n)
	return nil
}

func (c *cartFeatureContext) iRemove(id string) error {
	c.store.RemoveItem(id)
	return nil
}

func (c *cartFeatureContext) iClearTheCart() error {
	c.store.Clear()
	return nil
}

func (c *cartFeatureContext) theQuantityOfIs(id string, want int) error {
	if got := c.store.Quantity(id); got != want {
		return fmt.Errorf("quantity of %q: got %d, want %d", id, got, want)
	}
	return nil
}

func (c *cartFeatureContext) theCartTotalIs(total string) error {
	want, err := decimal.NewFromString(total)
	if err != nil {
		return err
	}
	if got := c.store.Total(); !got.Equal(want) {
		return fmt.Errorf("total: got %s, want %s", got, want)
	}
	return nil
}

func (c *cartFeatureContext) theCartHoldsItemsInLines(items, lines int) error {
	if got := c.store.ItemCount(); got != items {
		return fmt.Errorf("item count: got %d, want %d", got, items)
	}
	if got := c.store.LineCount(); got != lines {
		return fmt.Errorf("line count: got %d, want %d", got, lines)
	}
	return nil
}

func InitializeCartScenario(ctx *godog.ScenarioContext) {
	tc := &cartFeatureContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a catalog item "([^"]*)" priced ([\d.]+) with stock (\d+)$`, tc.aCatalogItemPricedWithStock)

	// When steps
	ctx.Step(`^I add (\d+) of "([^"]*)"$`, tc.iAddOf)
	ctx.Step(`^I set the quantity of "([^"]*)" to (-?\d+)$`, tc.iSetTheQuantityOfTo)
	ctx.Step(`^I remove "([^"]*)"$`, tc.iRemove)
	ctx.Step(`^I clear the cart$`, tc.iClearTheCart)

	// Then steps
	ctx.Step(`^the quantity of "([^"]*)" is (\d+)$`, tc.theQuantityOfIs)
	ctx.Step(`^the cart total is ([\d.]+)$`, tc.theCartTotalIs)
	ctx.Step(`^the cart holds (\d+) items in (\d+) lines$`, tc.theCartHoldsItemsInLines)
}

func TestCartFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCartScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/cart.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
