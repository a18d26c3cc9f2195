package models

// FactorsRequest is bound from /api/factors/:symbol.
type FactorsRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required,ticker"`
	Start     string `query:"start" json:"start"`
	End       string `query:"end" json:"end"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1Day"`
	// As is checked by ParseMode, which ignores case and surrounding space.
	As        string `query:"as" json:"as" default:"series"`
}

// BarsRequest is bound from /api/bars/:symbol.
type BarsRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required,ticker"`
	Start     string `query:"start" json:"start"`
	End       string `query:"end" json:"end"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1Day"`
}

type PricesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,ticker"`
}
