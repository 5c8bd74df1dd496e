package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de GET /book o de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaEvent es un evento de Gamma; los mercados meteorológicos diarios
// vienen agrupados por ciudad y día.
type gammaEvent struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Slug    string        `json:"slug"`
	Closed  bool          `json:"closed"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket contiene la metadata de un mercado binario.
// Gamma devuelve varias listas como strings JSON ("[\"Yes\",\"No\"]").
type gammaMarket struct {
	ID               string      `json:"id"`
	ConditionID      string      `json:"conditionId"`
	Question         string      `json:"question"`
	Slug             string      `json:"slug"`
	EndDateISO       string      `json:"endDateIso"`
	ResolutionSource string      `json:"resolutionSource"`
	Outcomes         string      `json:"outcomes"`
	OutcomePrices    string      `json:"outcomePrices"`
	ClobTokenIDs     string      `json:"clobTokenIds"`
	TickSize         json.Number `json:"orderPriceMinTickSize"`
	NegRisk          bool        `json:"negRisk"`
	Active           bool        `json:"active"`
	Closed           bool        `json:"closed"`
	UMAStatus        string      `json:"umaResolutionStatus"`
}
