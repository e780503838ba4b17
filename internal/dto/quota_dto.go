package dto

type ReserveQuotaRequest struct {
	YearMonth        string  `json:"yearMonth"`
	RequestedSeconds float64 `json:"requestedSeconds"`
}

type ReserveQuotaResponse struct {
	Success   bool    `json:"success"`
	Reserved  float64 `json:"reserved"`
	Remaining float64 `json:"remaining"`
	Message   string  `json:"message,omitempty"`
}

type ConsumeQuotaRequest struct {
	YearMonth       string   `json:"yearMonth"`
	ActualSeconds   float64  `json:"actualSeconds"`
	ReleasedSeconds *float64 `json:"releasedSeconds,omitempty"`
}

type ConsumeQuotaResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type QuotaStatusResponse struct {
	YearMonth       string  `json:"yearMonth"`
	Plan            string  `json:"plan"`
	Ceiling         float64 `json:"ceiling"`
	UsedSeconds     float64 `json:"usedSeconds"`
	ReservedSeconds float64 `json:"reservedSeconds"`
	Remaining       float64 `json:"remaining"`
}
