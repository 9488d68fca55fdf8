package model

import "time"

// QuantityRecord is the stored stock level of a single product.
// Version advances by one on every accepted write.
type QuantityRecord struct {
	ProductID int64     `json:"product_id" bson:"product_id"`
	Quantity  int64     `json:"quantity" bson:"quantity"`
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// InventoryStats summarises every quantity record in the store.
type InventoryStats struct {
	TotalRecords      int64 `json:"total_records"`
	TotalQuantity     int64 `json:"total_quantity"`
	OutOfStock        int64 `json:"out_of_stock"`
	LowStock          int64 `json:"low_stock"`
	LowStockThreshold int64 `json:"low_stock_threshold"`
}
