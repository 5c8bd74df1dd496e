package domain

import "time"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// AskDepthUpTo suma el tamaño (en shares) de los asks con precio <= maxPrice.
func (ob OrderBook) AskDepthUpTo(maxPrice float64) float64 {
	var total float64
	for _, a := range ob.Asks {
		if a.Price > maxPrice {
			break
		}
		total += a.Size
	}
	return total
}

// Quote resume el top of book.
func (ob OrderBook) Quote(at time.Time) Quote {
	q := Quote{FetchedAt: at}
	if len(ob.Bids) > 0 {
		q.Bid = ob.Bids[0].Price
		q.BidSize = ob.Bids[0].Size
	}
	if len(ob.Asks) > 0 {
		q.Ask = ob.Asks[0].Price
		q.AskSize = ob.Asks[0].Size
	}
	return q
}
