package domain

import "time"

type ConflictReason string

const (
	ConflictProductNotFound   ConflictReason = "PRODUCT_NOT_FOUND"
	ConflictInsufficientStock ConflictReason = "INSUFFICIENT_STOCK"
)

type Conflict struct {
	ProductID    string         `json:"product_id"`
	ProductName  string         `json:"product_name,omitempty"`
	Reason       ConflictReason `json:"reason"`
	RequestedQty int            `json:"requested_qty"`
	AvailableQty int            `json:"available_qty"`
	TotalStock   int            `json:"total_stock"`
	CommittedQty int            `json:"committed_qty"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
}
