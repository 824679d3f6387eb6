package gateway

import (
	"encoding/json"
	"strings"
	"time"
)

// =====================================================
// COMMON WIRE TYPES
// =====================================================

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type ExchangeRate struct {
	SourceCurrency string `json:"source_currency,omitempty"`
	TargetCurrency string `json:"target_currency,omitempty"`
	Value          string `json:"value,omitempty"`
}

// SellerBreakdown covers both the receivable (capture) and payable (refund)
// breakdowns; each carries a subset of these fields.
type SellerBreakdown struct {
	GrossAmount      *Money        `json:"gross_amount,omitempty"`
	PayPalFee        *Money        `json:"paypal_fee,omitempty"`
	NetAmount        *Money        `json:"net_amount,omitempty"`
	ReceivableAmount *Money        `json:"receivable_amount,omitempty"`
	ExchangeRate     *ExchangeRate `json:"exchange_rate,omitempty"`
}

type StatusDetails struct {
	Reason string `json:"reason,omitempty"`
}

type RelatedIDs struct {
	OrderID         string `json:"order_id,omitempty"`
	AuthorizationID string `json:"authorization_id,omitempty"`
	CaptureID       string `json:"capture_id,omitempty"`
}

type SupplementaryData struct {
	RelatedIDs *RelatedIDs `json:"related_ids,omitempty"`
}

// Resource is an authorization, capture or refund as returned by the gateway.
type Resource struct {
	ID                        string             `json:"id"`
	Status                    string             `json:"status"`
	StatusDetails             *StatusDetails     `json:"status_details,omitempty"`
	Amount                    *Money             `json:"amount,omitempty"`
	FinalCapture              *bool              `json:"final_capture,omitempty"`
	InvoiceID                 string             `json:"invoice_id,omitempty"`
	CustomID                  string             `json:"custom_id,omitempty"`
	SellerReceivableBreakdown *SellerBreakdown   `json:"seller_receivable_breakdown,omitempty"`
	SellerPayableBreakdown    *SellerBreakdown   `json:"seller_payable_breakdown,omitempty"`
	SupplementaryData         *SupplementaryData `json:"supplementary_data,omitempty"`
	ExpirationTime            *time.Time         `json:"expiration_time,omitempty"`
	CreateTime                *time.Time         `json:"create_time,omitempty"`
	UpdateTime                *time.Time         `json:"update_time,omitempty"`
	Links                     []Link             `json:"links,omitempty"`
}

// LinkHref returns the href of the first link with rel, or "".
func (r *Resource) LinkHref(rel string) string {
	return linkHref(r.Links, rel)
}

// UpID returns the id of the parent resource named by the "up" link.
func (r *Resource) UpID() string {
	return lastPathSegment(r.LinkHref("up"))
}

// =====================================================
// ORDERS
// =====================================================

type AmountBreakdown struct {
	ItemTotal        *Money `json:"item_total,omitempty"`
	Shipping         *Money `json:"shipping,omitempty"`
	Handling         *Money `json:"handling,omitempty"`
	TaxTotal         *Money `json:"tax_total,omitempty"`
	Insurance        *Money `json:"insurance,omitempty"`
	ShippingDiscount *Money `json:"shipping_discount,omitempty"`
	Discount         *Money `json:"discount,omitempty"`
}

type AmountWithBreakdown struct {
	CurrencyCode string           `json:"currency_code"`
	Value        string           `json:"value"`
	Breakdown    *AmountBreakdown `json:"breakdown,omitempty"`
}

type Item struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity"`
	UnitAmount Money  `json:"unit_amount"`
	Tax        *Money `json:"tax,omitempty"`
	SKU        string `json:"sku,omitempty"`
}

type Payments struct {
	Authorizations []Resource `json:"authorizations,omitempty"`
	Captures       []Resource `json:"captures,omitempty"`
	Refunds        []Resource `json:"refunds,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string               `json:"reference_id,omitempty"`
	Description string               `json:"description,omitempty"`
	CustomID    string               `json:"custom_id,omitempty"`
	InvoiceID   string               `json:"invoice_id,omitempty"`
	Amount      *AmountWithBreakdown `json:"amount,omitempty"`
	Items       []Item               `json:"items,omitempty"`
	Payments    *Payments            `json:"payments,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Intent        string         `json:"intent,omitempty"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	CreateTime    *time.Time     `json:"create_time,omitempty"`
	UpdateTime    *time.Time     `json:"update_time,omitempty"`
	Links         []Link         `json:"links,omitempty"`
}

// LinkHref returns the href of the first link with rel, or "".
func (o *Order) LinkHref(rel string) string {
	return linkHref(o.Links, rel)
}

// ApproveURL is where the payer approves the order.
func (o *Order) ApproveURL() string {
	if href := o.LinkHref("payer-action"); href != "" {
		return href
	}
	return o.LinkHref("approve")
}

// AsResource flattens the order into the fields recorded for its CREATE node.
func (o *Order) AsResource() Resource {
	res := Resource{
		ID:         o.ID,
		Status:     o.Status,
		CreateTime: o.CreateTime,
		UpdateTime: o.UpdateTime,
		Links:      o.Links,
	}
	if len(o.PurchaseUnits) > 0 && o.PurchaseUnits[0].Amount != nil {
		a := o.PurchaseUnits[0].Amount
		res.Amount = &Money{CurrencyCode: a.CurrencyCode, Value: a.Value}
		res.InvoiceID = o.PurchaseUnits[0].InvoiceID
		res.CustomID = o.PurchaseUnits[0].CustomID
	}
	return res
}

// Authorizations returns every authorization across purchase units.
func (o *Order) Authorizations() []Resource {
	var out []Resource
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil {
			out = append(out, pu.Payments.Authorizations...)
		}
	}
	return out
}

// Captures returns every capture across purchase units.
func (o *Order) Captures() []Resource {
	var out []Resource
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil {
			out = append(out, pu.Payments.Captures...)
		}
	}
	return out
}

// Refunds returns every refund across purchase units.
func (o *Order) Refunds() []Resource {
	var out []Resource
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil {
			out = append(out, pu.Payments.Refunds...)
		}
	}
	return out
}

// =====================================================
// REQUESTS
// =====================================================

type CreateOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []PurchaseUnitCreate `json:"purchase_units"`
}

type PurchaseUnitCreate struct {
	ReferenceID string              `json:"reference_id,omitempty"`
	CustomID    string              `json:"custom_id,omitempty"`
	InvoiceID   string              `json:"invoice_id,omitempty"`
	Amount      AmountWithBreakdown `json:"amount"`
	Items       []Item              `json:"items,omitempty"`
}

type CaptureRequest struct {
	Amount       *Money `json:"amount,omitempty"`
	FinalCapture bool   `json:"final_capture"`
	InvoiceID    string `json:"invoice_id,omitempty"`
	NoteToPayer  string `json:"note_to_payer,omitempty"`
}

type RefundRequest struct {
	Amount      *Money `json:"amount,omitempty"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	NoteToPayer string `json:"note_to_payer,omitempty"`
}

const (
	VerificationStatusSuccess = "SUCCESS"
	VerificationStatusFailure = "FAILURE"
)

// VerifySignatureRequest is the postback body for webhook verification.
type VerifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// =====================================================
// HELPERS
// =====================================================

func linkHref(links []Link, rel string) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, rel) {
			return l.Href
		}
	}
	return ""
}

func lastPathSegment(href string) string {
	if href == "" {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
