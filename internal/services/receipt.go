package services

import (
	"encoding/json"
	"errors"
	"strings"
)

// Store client receipts arrive doubly wrapped: an outer envelope whose
// Payload is itself JSON, whose "json" field is a string of JSON carrying
// the actual purchase record. Each layer is optional depending on the
// client version, so parsing peels whatever layers are present.
type playReceipt struct {
	PackageName   string
	ProductID     string
	PurchaseToken string
}

type receiptOuter struct {
	Payload string `json:"Payload"`
}

type receiptPayload struct {
	JSON          string `json:"json"`
	PackageName   string `json:"packageName"`
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
}

type receiptInner struct {
	PackageName   string `json:"packageName"`
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
}

var errMalformedReceipt = errors.New("malformed receipt")

func parsePlayReceipt(raw, fallbackPackage, fallbackProduct string) (*playReceipt, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errMalformedReceipt
	}

	body := raw
	var outer receiptOuter
	if err := json.Unmarshal([]byte(raw), &outer); err == nil && outer.Payload != "" {
		body = outer.Payload
	}

	var payload receiptPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, errMalformedReceipt
	}

	r := &playReceipt{
		PackageName:   payload.PackageName,
		ProductID:     payload.ProductID,
		PurchaseToken: payload.PurchaseToken,
	}

	if payload.JSON != "" {
		var inner receiptInner
		if err := json.Unmarshal([]byte(payload.JSON), &inner); err != nil {
			return nil, errMalformedReceipt
		}
		r.PackageName = inner.PackageName
		r.ProductID = inner.ProductID
		r.PurchaseToken = inner.PurchaseToken
	}

	if r.PackageName == "" {
		r.PackageName = fallbackPackage
	}
	if r.ProductID == "" {
		r.ProductID = fallbackProduct
	}
	if r.PurchaseToken == "" {
		return nil, errMalformedReceipt
	}
	return r, nil
}
