package handler

import (
	"strconv"
	"time"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"

	"github.com/shopspring/decimal"
)

const (
	inventoryType = "inventory"
	productType   = "products"
)

type inventoryAttributes struct {
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type resourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type relationship struct {
	Data resourceIdentifier `json:"data"`
}

type inventoryRelationships struct {
	Product relationship `json:"product"`
}

type productAttributes struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Active      bool            `json:"active"`
}

type productResource struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes productAttributes `json:"attributes"`
}

// inventoryResource is the JSON:API-shaped view of a quantity record.
type inventoryResource struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Attributes    inventoryAttributes    `json:"attributes"`
	Relationships inventoryRelationships `json:"relationships"`
	Included      []productResource      `json:"included,omitempty"`
}

func newInventoryResource(rec model.QuantityRecord, p *model.Product) inventoryResource {
	id := strconv.FormatInt(rec.ProductID, 10)
	res := inventoryResource{
		ID:   id,
		Type: inventoryType,
		Attributes: inventoryAttributes{
			ProductID: rec.ProductID,
			Quantity:  rec.Quantity,
			Version:   rec.Version,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		},
		Relationships: inventoryRelationships{
			Product: relationship{Data: resourceIdentifier{ID: id, Type: productType}},
		},
	}
	if p != nil {
		res.Included = []productResource{{
			ID:   strconv.FormatInt(p.ID, 10),
			Type: productType,
			Attributes: productAttributes{
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				Category:    p.Category,
				Active:      p.Active,
			},
		}}
	}
	return res
}

func fromInventory(inv *service.Inventory) inventoryResource {
	return newInventoryResource(inv.Record, inv.Product)
}

func fromInventories(items []service.Inventory) []inventoryResource {
	out := make([]inventoryResource, len(items))
	for i, inv := range items {
		out[i] = newInventoryResource(inv.Record, inv.Product)
	}
	return out
}
