package shared

// Logistics permissions carried by API tokens.
const (
	PermParcelView    = "parcel.view"
	PermParcelManage  = "parcel.manage"
	PermParcelDeliver = "parcel.deliver"

	PermDeliveryNoteView   = "delivery_note.view"
	PermDeliveryNoteManage = "delivery_note.manage"

	PermTransferManage = "transfer.manage"
	PermStockView      = "stock.view"

	PermCustomerManage = "customer.manage"
	PermItemView       = "item.view"
)

// LogisticsScopes lists every permission a token may carry.
func LogisticsScopes() []string {
	return []string{
		PermParcelView,
		PermParcelManage,
		PermParcelDeliver,
		PermDeliveryNoteView,
		PermDeliveryNoteManage,
		PermTransferManage,
		PermStockView,
		PermCustomerManage,
		PermItemView,
	}
}
