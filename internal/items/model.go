// Package items resolves scanned barcodes to stock items.
package items

// Item is the lookup answer for a barcode.
type Item struct {
	Name     string `json:"name"`
	ItemName string `json:"item_name"`
}
