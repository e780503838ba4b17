package dto

type VerifyReceiptRequest struct {
	Receipt   string `json:"receipt"`
	Platform  string `json:"platform"` // "GooglePlay" or "AppStore"
	ProductID string `json:"productId"`
}

type VerifyReceiptResponse struct {
	Success bool   `json:"success"`
	Plan    string `json:"plan,omitempty"`
	Message string `json:"message,omitempty"`
}

type SubscriptionStatusRequest struct {
	UID       string `json:"uid,omitempty"`
	Receipt   string `json:"receipt,omitempty"`
	ProductID string `json:"productId,omitempty"`
}

type SubscriptionStatusResponse struct {
	Success   bool   `json:"success"`
	Plan      string `json:"plan"`
	Expired   bool   `json:"expired"`
	Cancelled *bool  `json:"cancelled,omitempty"`
	NoReceipt bool   `json:"noReceipt,omitempty"`
	ExpiryMs  int64  `json:"expiryTime,omitempty"`
}

type DowngradePlanRequest struct {
	NewPlan string `json:"newPlan"`
}

type DowngradePlanResponse struct {
	Success bool   `json:"success"`
	Plan    string `json:"plan"`
}

type EntitlementsResponse struct {
	Plan             string  `json:"plan"`
	QuotaCeiling     float64 `json:"quotaCeiling"`
	CanAutoRecord    bool    `json:"canAutoRecord"`
	HistoryMonths    int     `json:"historyMonths"` // -1 means unlimited
	LogOptOut        bool    `json:"logOptOut"`
	DowngradePending bool    `json:"downgradePending"`
}

type AuthorizeAnalysisResponse struct {
	Success       bool   `json:"success"`
	Plan          string `json:"plan"`
	LogOptOut     bool   `json:"logOptOut"`
	TrialsUsed    int    `json:"trialsUsed,omitempty"`
	TrialsAllowed int    `json:"trialsAllowed,omitempty"`
	Message       string `json:"message,omitempty"`
}
