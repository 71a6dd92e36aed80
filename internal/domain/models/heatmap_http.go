package models

// Requests for heatmap HTTP endpoints. Defined in domain for consistency and reuse.

type HeatmapRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type LatestHeatmapRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

type SimulateRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	From   string `query:"from" json:"from" validate:"required"`
	To     string `query:"to" json:"to" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
}

type BackfillRequest struct {
	Symbol string `json:"symbol" validate:"required,symbol"`
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	TF     string `json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
}
