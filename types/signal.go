package types

// Signal is the direction a strategy wants for one bar. It carries no quantity.
type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Side maps a signal to an order side. Hold has no side.
func (s Signal) Side() (Side, bool) {
	switch s {
	case Buy:
		return SideTypeBuy, true
	case Sell:
		return SideTypeSell, true
	}
	return "", false
}
