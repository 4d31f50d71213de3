package domain

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

// Spread devuelve el spread del book (ask - bid).
// Devuelve 0 si falta alguno de los dos lados.
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
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

// AskDepthShares devuelve el total de shares ofrecidas en el lado ask.
// Es la profundidad que puede absorber una compra (market buy).
func (ob OrderBook) AskDepthShares() float64 {
	var total float64
	for _, a := range ob.Asks {
		total += a.Size
	}
	return total
}

// BidDepthUSDC devuelve el valor en USDC (size × price) del lado bid.
// Usar para medir la liquidez disponible al salir de una posición.
func (ob OrderBook) BidDepthUSDC() float64 {
	var total float64
	for _, b := range ob.Bids {
		total += b.Size * b.Price
	}
	return total
}

// DepthUSDC devuelve el valor en USDC de ambos lados del book.
func (ob OrderBook) DepthUSDC() float64 {
	var total float64
	for _, b := range ob.Bids {
		total += b.Size * b.Price
	}
	for _, a := range ob.Asks {
		total += a.Size * a.Price
	}
	return total
}
